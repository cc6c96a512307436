package cmd

import (
	"context"

	"github.com/go-i2p/keychain/cms"
	"github.com/spf13/cobra"
)

var openOutFile string
var openInFile string

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Decrypt a CMS EnvelopedData using whichever stored key the envelope resolves to",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		envelope, err := readInput(openInFile)
		cobra.CheckErr(err)

		plain, err := cms.ReadData(context.Background(), kc, envelope)
		cobra.CheckErr(err)

		cobra.CheckErr(writeOutput(openOutFile, plain))
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().StringVar(&openInFile, "in", "-", "envelope input file (\"-\" for stdin)")
	openCmd.Flags().StringVar(&openOutFile, "out", "-", "decrypted output file (\"-\" for stdout)")
}
