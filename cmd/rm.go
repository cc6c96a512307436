package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove a key from the chain",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		cobra.CheckErr(kc.RemoveKey(context.Background(), args[0]))
		fmt.Printf("removed %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
