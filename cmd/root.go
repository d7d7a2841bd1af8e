// Package cmd contains the cobra command line interface
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "beacon-events",
	Short: "beacon-events " + Version,
	Long:  `Streams beacon node events and fans them out to listeners`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("beacon-events %s\n", Version)
		_ = cmd.Help()
	},
}

// Version is set at build time.
var Version = "dev"

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
