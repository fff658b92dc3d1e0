package main

import (
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new key file",
		Long:  `Generates a master key and an empty user registry, protected by a new master password.`,
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
			password, err := a.readNewPassword("Master password: ")
			if err != nil {
				return err
			}

			if _, err := v.InitRegistry(keyFile, password); err != nil {
				return err
			}
			a.store.SetLastKeyPath(keyFile)
			a.remember()
			a.successf("Key file created at %s", keyFile)
			return nil
		},
	}
}
