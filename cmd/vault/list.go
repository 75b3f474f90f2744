package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/burakince/vault/dispatch"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the leader vault and every partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		return dispatch.Execute(eng, dispatch.List{VaultPath: configPath(cmd)}, os.Stdout)
	},
}
