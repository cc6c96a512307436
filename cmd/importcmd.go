package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importInFile string
var importPassword string

var importCmd = &cobra.Command{
	Use:   "import NAME",
	Short: "Decrypt a key record (PEM, PKCS#12, or JKS) and re-encrypt it under the chain DEK",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		data, err := os.ReadFile(importInFile)
		cobra.CheckErr(err)

		info, err := kc.ImportKey(context.Background(), args[0], data, importPassword)
		cobra.CheckErr(err)
		fmt.Printf("imported %s id=%s\n", info.Name, info.ID)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importInFile, "in", "", "input key record file")
	importCmd.Flags().StringVar(&importPassword, "password", "", "password the input record is encrypted under")
	importCmd.MarkFlagRequired("in")
	importCmd.MarkFlagRequired("password")
}
