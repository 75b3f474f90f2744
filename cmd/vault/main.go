// Command vault is the CLI front-end over package dispatch. Flag parsing
// and subcommand dispatch are deliberately thin (spec §1: "the command-line
// parser and argument dispatch" is an external collaborator) — every RunE
// below does nothing but build a dispatch.Command and call dispatch.Execute.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/burakince/vault/verr"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		verr.PrintCauses(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage an encrypted vault of secrets shared among recipients",
	Long: `vault manages an encrypted vault of secret files shared among a set
of recipients identified by OpenPGP key fingerprints, including
sub-vaults ("partitions") with their own recipient sets.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "vault.yaml", "path to the vault configuration document")
	rootCmd.PersistentFlags().StringP("vault-id", "i", "", "partition selector (index, path, or name); empty selects the leader")
	rootCmd.PersistentFlags().String("secret-key", "", "path to an armored OpenPGP secret key to load")
	rootCmd.PersistentFlags().String("public-keyring", "", "path to an armored OpenPGP public keyring to import")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON instead of console-formatted")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(recipientsCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(lsCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	asJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	if !asJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func configPath(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("config")
	return v
}

func vaultID(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("vault-id")
	return v
}

func fail(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
