package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <container> <dest-dir>",
		Short: "Decrypt a container into a directory without tracking it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			dest, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			v, err := a.vault()
			if err != nil {
				return err
			}
			u, err := a.authenticate(v)
			if err != nil {
				return err
			}

			sp := a.startSpinner("Exporting container")
			ar, err := v.Containers.ReadContainer(file, u.Key)
			if err == nil {
				err = v.Archiver.Extract(ar, dest, sp.progress())
			}
			sp.stop(err, "Exported to "+dest)
			if err != nil {
				return err
			}
			a.remember()
			return nil
		},
	}
}
