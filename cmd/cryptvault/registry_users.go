package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.vault()
			if err != nil {
				return err
			}
			reg, err := a.openRegistry(v)
			if err != nil {
				return err
			}
			a.remember()

			if reg.Len() == 0 {
				a.infof("No users registered")
				return nil
			}
			for _, name := range reg.Usernames() {
				fmt.Fprintln(a.out, name)
			}
			return nil
		},
	}
}
