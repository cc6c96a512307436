package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var exportOutFile string
var exportPassword string

var exportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Decrypt a stored key under the chain DEK and re-encrypt it under a password",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		pemBytes, err := kc.ExportKey(context.Background(), args[0], exportPassword)
		cobra.CheckErr(err)

		if exportOutFile == "" || exportOutFile == "-" {
			os.Stdout.Write(pemBytes)
			return
		}
		cobra.CheckErr(os.WriteFile(exportOutFile, pemBytes, 0o600))
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportOutFile, "out", "-", "output file for the encrypted PEM (\"-\" for stdout)")
	exportCmd.Flags().StringVar(&exportPassword, "password", "", "password to encrypt the exported key under")
	exportCmd.MarkFlagRequired("password")
}
