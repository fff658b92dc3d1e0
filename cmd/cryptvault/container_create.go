package main

import (
	"path/filepath"

	"github.com/absfs/cryptvault"
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <source-dir> <container>",
		Short: "Encrypt a directory into a new container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			output, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			v, err := a.vault()
			if err != nil {
				return err
			}
			s, err := a.login(v)
			if err != nil {
				return err
			}

			sp := a.startSpinner("Creating container")
			task := cryptvault.Go(func(progress cryptvault.ProgressFunc) (string, error) {
				return v.Containers.CreateContainer(s, source, output, progress)
			}, sp.progress())
			_, err = task.Wait()
			if err == nil {
				err = v.Containers.CloseAndCleanup(s, nil)
			}
			sp.stop(err, "Container created at "+output)
			if err != nil {
				return err
			}

			a.store.SetLastContainerPath(s.Username(), output)
			a.remember()
			return nil
		},
	}
}
