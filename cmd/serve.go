package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-i2p/keychain/httpapi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve read-only KeyInfo introspection over HTTP",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kc, err := openKeychain()
		cobra.CheckErr(err)
		defer kc.Close()

		stats := &httpapi.OpCounters{StateFile: c.StatsFile}
		stats.Load()

		srv := httpapi.New(kc, stats)
		addr := fmt.Sprintf("%s:%s", c.Host, c.Port)
		log.Printf("keychain serve: listening on %s", addr)
		cobra.CheckErr(http.ListenAndServe(addr, srv))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&c.Host, "host", "127.0.0.1", "HTTP listen host")
	serveCmd.Flags().StringVar(&c.Port, "port", "9696", "HTTP listen port")
	serveCmd.Flags().StringVar(&c.StatsFile, "statsfile", "keychain-stats.json", "file operation counters are loaded from at startup (serve does not write it)")
}
