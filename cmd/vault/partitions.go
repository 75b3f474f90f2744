package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/burakince/vault/dispatch"
)

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "Manage partitions (sub-vaults with independent recipient sets)",
}

var partitionsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		name, _ := cmd.Flags().GetString("name")
		if path == "" {
			return fail("--path is required")
		}

		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.PartitionsAdd{
			VaultPath: configPath(cmd),
			Path:      path,
			Name:      name,
		}, os.Stdout)
	},
}

var partitionsRemoveCmd = &cobra.Command{
	Use:   "remove <selector>",
	Short: "Remove a partition by index, path, or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.PartitionsRemove{
			VaultPath: configPath(cmd),
			Selector:  args[0],
		}, os.Stdout)
	},
}

func init() {
	partitionsAddCmd.Flags().String("path", "", "secrets directory of the new partition, relative to the leader's")
	partitionsAddCmd.Flags().String("name", "", "optional name for the new partition (defaults to the path's base name)")

	partitionsCmd.AddCommand(partitionsAddCmd)
	partitionsCmd.AddCommand(partitionsRemoveCmd)
}
