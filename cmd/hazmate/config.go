package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage hazmate configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (HAZMATE_ prefix)
  - .env file
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'hazmate.yaml'
unless a different path is specified with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInit()
	},
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging all sources.

Sensitive values like the OAuth client secret are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow()
	},
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the effective configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required fields
  - Value types and ranges`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigValidate()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit() error {
	configPath := configFile
	if configPath == "" {
		configPath = "hazmate.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s (remove it first to regenerate)", configPath)
	}

	exampleConfig := `# Hazmate Configuration File
#
# This file contains all available configuration options.
# You can also use environment variables prefixed with HAZMATE_
# For example: HAZMATE_CLIENT_ID, HAZMATE_TARGET_SIZE

# OAuth application credentials
auth:
  # MercadoLibre application client ID (required)
  client_id: "YOUR_CLIENT_ID"

  # MercadoLibre application client secret (required)
  # Prefer HAZMATE_CLIENT_SECRET over storing it here
  client_secret: ""

  # Redirect URI registered with the application
  redirect_uri: "https://localhost:8080/callback"

  # Dotenv file used as the token storage fallback
  token_file: ".env"

  # Minimum remaining token lifetime before a silent refresh
  safety_margin: 60s

# Collection configuration
collection:
  # Marketplace site to collect from
  site_id: "MLB"

  # Number of unique items to collect
  target_size: 10000

  # Collection strategy: balance or speed
  strategy: "balance"

  # Number of concurrent page fetchers
  # Range: 1-16
  parallelism: 4

  # Items per search page in balanced mode
  # Range: 1-50
  page_size: 20

  # Items per search page in speed mode
  speed_page_size: 50

  # How far a category may run ahead of an even split (fraction)
  fairness_tolerance: 0.2

  # Page budget for a run (0 = unlimited)
  max_pages: 0

  # Wall-clock budget for a run (0 = unlimited)
  deadline: 0s

  # Category catalog file (empty = built-in catalog)
  # Export the built-in one with 'hazmate catalog export'
  catalog_file: ""

  # Checkpoint every N pages
  checkpoint_every: 10

# Rate limiting configuration
rate_limit:
  # Requests per minute against the upstream API
  requests_per_minute: 120

  # Attempts per category/term pair before it is skipped
  max_attempts: 5

  # Backoff after upstream throttling
  backoff_base: 30s
  backoff_max: 5m
  backoff_multiplier: 1.5
  jitter_factor: 0.3

# Retry configuration for transient errors
retry:
  max_attempts: 3
  base_delay: 1s
  max_delay: 30s
  multiplier: 2.0
  jitter: 0.1
  timeout: 30s

# Output configuration
output:
  # Directory for the dataset and checkpoint
  directory: "./datasets"

  # Dataset file name (JSON Lines)
  dataset_file: "input_dataset.jsonl"

  # Prometheus scrape endpoint (empty = disabled)
  metrics_addr: ""

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log file path (empty = stderr only)
  file: ""
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("Edit it, then run 'hazmate config validate' to check it.")
	return nil
}

func runConfigShow() error {
	cfg, err := loadConfigLenient()
	if err != nil {
		return err
	}

	// Mask secrets before printing
	shown := *cfg
	shown.Auth.ClientSecret = maskToken(cfg.Auth.ClientSecret)

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	os.Stdout.Write(data)
	return nil
}

func runConfigValidate() error {
	cfg, err := loadConfigLenient()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is invalid:\n%w", err)
	}
	fmt.Println("Configuration is valid.")
	return nil
}
