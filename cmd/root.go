package cmd

import (
	"fmt"
	"log"
	"os"

	"JamFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jamfm_server",
	Short: "JamFM is a shared listening session service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting JamFM server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
