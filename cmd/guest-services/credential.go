package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/guest-services/internal/credential"
)

var credentialKeys = []string{credential.KeyBackendAPIKey, credential.KeyRedisPassword}

func checkCredentialKey(key string) error {
	for _, k := range credentialKeys {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("unknown credential %q (want one of %v)", key, credentialKeys)
}

// credentialCmd represents the credential command
var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage secrets stored in the system keyring",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store a secret, prompting for its value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := checkCredentialKey(key); err != nil {
			return err
		}

		var value string
		err := huh.NewInput().
			Title(key).
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("value is required")
				}
				return nil
			}).
			Value(&value).
			Run()
		if err != nil {
			return err
		}

		if err := credential.Set(key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", key)
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkCredentialKey(args[0]); err != nil {
			return err
		}
		if err := credential.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd, credentialDeleteCmd)
	rootCmd.AddCommand(credentialCmd)
}
