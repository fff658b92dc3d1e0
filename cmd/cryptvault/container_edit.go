package main

import (
	"io"

	"github.com/absfs/cryptvault"
	"github.com/spf13/cobra"
)

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [container]",
		Short: "Decrypt a container for editing, then save it back",
		Long: `Decrypts the container into a private workspace directory and waits.
Edit the files in the workspace, then press Enter to re-encrypt them into the
container and remove the workspace. Without an argument the user's last
container is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.vault()
			if err != nil {
				return err
			}
			s, err := a.login(v)
			if err != nil {
				return err
			}
			file, err := a.resolveContainer(args)
			if err != nil {
				return err
			}

			sp := a.startSpinner("Opening container")
			task := cryptvault.Go(func(progress cryptvault.ProgressFunc) (string, error) {
				return v.Containers.OpenContainer(s, file, progress)
			}, sp.progress())
			workspace, err := task.Wait()
			sp.stop(err, "Container opened")
			if err != nil {
				return err
			}
			a.store.SetLastContainerPath(s.Username(), file)
			a.remember()

			a.infof("Workspace: %s", workspace)
			a.infof("Press Enter to save and close")
			if _, err := a.readLine(); err != nil && err != io.ErrUnexpectedEOF {
				a.warnf("reading input: %v", err)
			}

			sp = a.startSpinner("Saving container")
			err = v.Containers.CloseAndCleanup(s, sp.progress())
			sp.stop(err, "Container saved and workspace removed")
			if err != nil {
				a.warnf("workspace kept at %s", workspace)
				return err
			}
			return nil
		},
	}
}
