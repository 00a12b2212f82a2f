package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"screening-pipeline/internal/api/handlers"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s\n", app, handlers.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
