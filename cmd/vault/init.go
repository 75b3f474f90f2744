package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/burakince/vault/dispatch"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault configuration document",
	RunE: func(cmd *cobra.Command, args []string) error {
		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		recipientsFile, _ := cmd.Flags().GetString("recipients-file")
		gpgKeysDir, _ := cmd.Flags().GetString("gpg-keys-dir")

		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.Init{
			VaultPath:      configPath(cmd),
			SecretsDir:     secretsDir,
			RecipientsFile: recipientsFile,
			GPGKeysDir:     gpgKeysDir,
		}, os.Stdout)
	},
}

func init() {
	initCmd.Flags().String("secrets-dir", "secrets", "directory (relative to the config file) to hold encrypted resources")
	initCmd.Flags().String("recipients-file", "secrets/.recipients", "path (relative to the config file) of the recipients list")
	initCmd.Flags().String("gpg-keys-dir", "", "optional directory (relative to the config file) to hold exported recipient keys")
}
