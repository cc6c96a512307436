package cmd

import (
	"context"
	"os"

	"github.com/go-i2p/keychain/cms"
	"github.com/spf13/cobra"
)

var sealOutFile string
var sealInFile string

var sealCmd = &cobra.Command{
	Use:   "seal NAME",
	Short: "Encrypt stdin (or --in) into a CMS EnvelopedData addressed to NAME",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		plain, err := readInput(sealInFile)
		cobra.CheckErr(err)

		envelope, err := cms.CreateAnonymousEncryptedData(context.Background(), kc, args[0], plain)
		cobra.CheckErr(err)

		cobra.CheckErr(writeOutput(sealOutFile, envelope))
	},
}

func init() {
	rootCmd.AddCommand(sealCmd)
	sealCmd.Flags().StringVar(&sealInFile, "in", "-", "plaintext input file (\"-\" for stdin)")
	sealCmd.Flags().StringVar(&sealOutFile, "out", "-", "envelope output file (\"-\" for stdout)")
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return readAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
