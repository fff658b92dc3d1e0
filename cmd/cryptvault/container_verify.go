package main

import (
	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [container]",
		Short: "Check that a container decrypts and parses",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.vault()
			if err != nil {
				return err
			}
			u, err := a.authenticate(v)
			if err != nil {
				return err
			}
			file, err := a.resolveContainer(args)
			if err != nil {
				return err
			}

			ar, err := v.Containers.ReadContainer(file, u.Key)
			if err != nil {
				return err
			}
			a.remember()
			a.successf("%s: %d entries, %d files, %d bytes", file, len(ar.Entries), ar.Files(), ar.TotalBytes())
			return nil
		},
	}
}
