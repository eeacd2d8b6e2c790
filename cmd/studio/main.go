// Package main is the studio command: the generation API server and a one-shot
// generate client sharing the same wiring.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

var rootCmd = &cobra.Command{
	Use:           "studio",
	Short:         "Image generation studio",
	Long:          "Builds node-graph workflows from generation parameters, runs them on a remote backend and keeps a gallery of the results.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
