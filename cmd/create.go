package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var createKeyType string
var createKeySize int

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Generate a fresh RSA keypair and store it under NAME",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		if err != nil {
			cobra.CheckErr(err)
		}
		defer kc.Close()

		info, err := kc.CreateKey(context.Background(), args[0], createKeyType, createKeySize)
		cobra.CheckErr(err)
		fmt.Printf("created %s id=%s\n", info.Name, info.ID)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&createKeyType, "type", "rsa", "key type (only \"rsa\" is supported)")
	createCmd.Flags().IntVar(&createKeySize, "size", 2048, "RSA key size in bits")
}
