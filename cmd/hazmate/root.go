package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hazmate",
	Short: "Hazmat candidate dataset collector for MercadoLibre",
	Long: `Hazmate collects a labeled-input dataset of marketplace listings that are
likely to contain hazardous materials (flammables, aerosols, batteries,
corrosives and similar) from the MercadoLibre catalog.

Features:
  - OAuth token handling with silent refresh and secure storage
  - Balanced or speed-first collection across product categories
  - Concurrent page fetching with rate-limit aware backoff
  - Deduplicated JSONL dataset output with resume support
  - Checkpointed progress for interrupted runs
  - Optional Prometheus metrics endpoint`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./hazmate.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
