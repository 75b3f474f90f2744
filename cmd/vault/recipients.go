package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/burakince/vault/dispatch"
)

var recipientsCmd = &cobra.Command{
	Use:     "recipients",
	Aliases: []string{"recipient"},
	Short:   "Manage a partition's recipient set",
}

var recipientsAddCmd = &cobra.Command{
	Use:   "add <key-id>...",
	Short: "Add one or more recipients and re-encrypt affected resources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unverified, _ := cmd.Flags().GetBool("unverified")
		signingKeyID, _ := cmd.Flags().GetString("signing-key")

		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.RecipientsAdd{
			VaultPath:    configPath(cmd),
			Selector:     vaultID(cmd),
			IDs:          args,
			Unverified:   unverified,
			SigningKeyID: signingKeyID,
		}, os.Stdout)
	},
}

var recipientsRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint>...",
	Short: "Remove one or more recipients and re-encrypt affected resources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.RecipientsRemove{
			VaultPath: configPath(cmd),
			Selector:  vaultID(cmd),
			IDs:       args,
		}, os.Stdout)
	},
}

var recipientsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Publish a local key as an exportable recipient",
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID, _ := cmd.Flags().GetString("key-id")
		add, _ := cmd.Flags().GetBool("add")
		signingKeyID, _ := cmd.Flags().GetString("signing-key")

		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.RecipientsInit{
			VaultPath:    configPath(cmd),
			Selector:     vaultID(cmd),
			KeyID:        keyID,
			Add:          add,
			SigningKeyID: signingKeyID,
		}, os.Stdout)
	},
}

var recipientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a partition's current recipient fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.RecipientsList{
			VaultPath: configPath(cmd),
			Selector:  vaultID(cmd),
		}, os.Stdout)
	},
}

func init() {
	recipientsAddCmd.Flags().Bool("unverified", false, "locally sign each resolved-but-untrusted key instead of rejecting it")
	recipientsAddCmd.Flags().String("signing-key", "", "explicit signing key id for --unverified (default: the sole local secret key)")

	recipientsInitCmd.Flags().String("key-id", "", "explicit key id to publish (default: the sole local secret key)")
	recipientsInitCmd.Flags().Bool("add", false, "also immediately add the published key as a recipient")
	recipientsInitCmd.Flags().String("signing-key", "", "explicit signing key id used if --add is set")

	recipientsCmd.AddCommand(recipientsAddCmd)
	recipientsCmd.AddCommand(recipientsRemoveCmd)
	recipientsCmd.AddCommand(recipientsInitCmd)
	recipientsCmd.AddCommand(recipientsListCmd)
}
