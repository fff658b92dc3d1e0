package main

import (
	"github.com/spf13/cobra"
)

func newRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <username>",
		Short: "Add a user to the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.vault()
			if err != nil {
				return err
			}
			reg, err := a.openRegistry(v)
			if err != nil {
				return err
			}
			password, err := a.readNewPassword("Password for " + args[0] + ": ")
			if err != nil {
				return err
			}

			if _, err := reg.Register(args[0], password); err != nil {
				return err
			}
			a.remember()
			a.successf("User %s registered", args[0])
			return nil
		},
	}
}
