package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key in the chain",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		infos, err := kc.ListKeys(context.Background())
		cobra.CheckErr(err)
		for _, info := range infos {
			fmt.Printf("%s\t%s\n", info.Name, info.ID)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
