package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "apirecon",
	Short: "Static API call reconnaissance for JavaScript and TypeScript",
	Long: `apirecon parses JavaScript and TypeScript sources and statically
resolves every outbound HTTP call it can find: fetch, XHR, axios and
axios-like clients, data-fetching hooks and service-method indirection.
Each call is reported with its method, URL, confidence tier and source
locations.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("apirecon v%s\n", version)
		},
	})
}
