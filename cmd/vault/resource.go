package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/burakince/vault/dispatch"
	"github.com/burakince/vault/resource"
)

var addCmd = &cobra.Command{
	Use:   "add <destination>",
	Short: "Encrypt a file (or stdin) as a new resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("from")
		noCreate, _ := cmd.Flags().GetBool("no-overwrite")
		mode := resource.Create
		if noCreate {
			mode = resource.NoCreate
		}

		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.ResourceAdd{
			VaultPath:   configPath(cmd),
			Selector:    vaultID(cmd),
			Source:      source,
			Destination: args[0],
			Mode:        mode,
		}, os.Stdout)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Decrypt a resource to standard output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.ResourceShow{
			VaultPath: configPath(cmd),
			Selector:  vaultID(cmd),
			Name:      args[0],
		}, os.Stdout)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Decrypt a resource, launch $EDITOR on it, and re-encrypt the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noCreate, _ := cmd.Flags().GetBool("no-create")
		mode := resource.Create
		if noCreate {
			mode = resource.NoCreate
		}

		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.ResourceEdit{
			VaultPath: configPath(cmd),
			Selector:  vaultID(cmd),
			Name:      args[0],
			Mode:      mode,
		}, os.Stdout)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a resource's ciphertext",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.ResourceRemove{
			VaultPath: configPath(cmd),
			Selector:  vaultID(cmd),
			Name:      args[0],
		}, os.Stdout)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every resource under a partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.ResourceList{
			VaultPath: configPath(cmd),
			Selector:  vaultID(cmd),
		}, os.Stdout)
	},
}

func init() {
	addCmd.Flags().String("from", "stdin", "source file to read plaintext from (\"stdin\" reads standard input)")
	addCmd.Flags().Bool("no-overwrite", false, "fail instead of overwriting an existing resource")

	editCmd.Flags().Bool("no-create", false, "fail with NotFound instead of creating a missing resource")
}
