package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a stored key",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		info, err := kc.RenameKey(context.Background(), args[0], args[1])
		cobra.CheckErr(err)
		fmt.Printf("renamed %s -> %s id=%s\n", args[0], info.Name, info.ID)
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
}
