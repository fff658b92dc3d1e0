package main

import (
	"github.com/spf13/cobra"
)

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password of the key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keyFile, err := a.resolveKeyFile()
			if err != nil {
				return err
			}
			v, err := a.vault()
			if err != nil {
				return err
			}
			oldPassword, err := a.readPassword("Current master password: ")
			if err != nil {
				return err
			}
			newPassword, err := a.readNewPassword("New master password: ")
			if err != nil {
				return err
			}

			if err := v.Keys.ChangePassword(keyFile, oldPassword, newPassword); err != nil {
				return err
			}
			a.store.SetLastKeyPath(keyFile)
			a.remember()
			a.successf("Master password changed")
			return nil
		},
	}
}
