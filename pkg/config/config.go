package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Strategy names accepted by the collection scheduler
const (
	StrategyBalance = "balance"
	StrategySpeed   = "speed"
)

// Config holds all configuration options for the hazmate collector
type Config struct {
	// Marketplace OAuth application settings
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Collection run settings
	Collection CollectionConfig `yaml:"collection" json:"collection"`

	// Upstream rate limiting and backoff configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Executor-level retry configuration for transient failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// AuthConfig holds the OAuth application credentials and token handling knobs
type AuthConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri" json:"redirect_uri"`
	// TokenFile is the dotenv file the token pair is persisted to
	TokenFile string `yaml:"token_file" json:"token_file"`
	// SafetyMargin is the minimum remaining token lifetime required before a
	// call is attempted without renewing first
	SafetyMargin time.Duration `yaml:"safety_margin" json:"safety_margin"`
}

// CollectionConfig holds the run-level collection options
type CollectionConfig struct {
	SiteID            string        `yaml:"site_id" json:"site_id"`
	TargetSize        int           `yaml:"target_size" json:"target_size"`
	Strategy          string        `yaml:"strategy" json:"strategy"`
	Parallelism       int           `yaml:"parallelism" json:"parallelism"`
	PageSize          int           `yaml:"page_size" json:"page_size"`
	SpeedPageSize     int           `yaml:"speed_page_size" json:"speed_page_size"`
	FairnessTolerance float64       `yaml:"fairness_tolerance" json:"fairness_tolerance"`
	MaxPages          int           `yaml:"max_pages" json:"max_pages"`
	Deadline          time.Duration `yaml:"deadline" json:"deadline"`
	CatalogFile       string        `yaml:"catalog_file" json:"catalog_file"`
	CheckpointEvery   int           `yaml:"checkpoint_every" json:"checkpoint_every"`
}

// RateLimitConfig holds rate limiting and scheduler backoff configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	// MaxAttempts is the per-pair ceiling for rate-limited retries before the
	// (category, term) pair is skipped and tallied
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max" json:"backoff_max"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	JitterFactor      float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// RetryConfig holds the executor retry policy for 5xx and network errors
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
	Jitter      float64       `yaml:"jitter" json:"jitter"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// OutputConfig holds dataset output configuration
type OutputConfig struct {
	Directory   string `yaml:"directory" json:"directory"`
	DatasetFile string `yaml:"dataset_file" json:"dataset_file"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			RedirectURI:  "https://localhost:8080/callback",
			TokenFile:    ".env",
			SafetyMargin: 60 * time.Second,
		},
		Collection: CollectionConfig{
			SiteID:            "MLB",
			TargetSize:        10000,
			Strategy:          StrategyBalance,
			Parallelism:       4,
			PageSize:          20,
			SpeedPageSize:     50,
			FairnessTolerance: 0.2,
			MaxPages:          0, // 0 means no page budget
			Deadline:          0, // 0 means no deadline
			CatalogFile:       "",
			CheckpointEvery:   10,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			MaxAttempts:       5,
			BackoffBase:       30 * time.Second,
			BackoffMax:        5 * time.Minute,
			BackoffMultiplier: 1.5,
			JitterFactor:      0.3,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
			Timeout:     30 * time.Second,
		},
		Output: OutputConfig{
			Directory:   "./datasets",
			DatasetFile: "input_dataset.jsonl",
			MetricsAddr: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if clientID := os.Getenv("HAZMATE_CLIENT_ID"); clientID != "" {
		c.Auth.ClientID = clientID
	}
	if clientSecret := os.Getenv("HAZMATE_CLIENT_SECRET"); clientSecret != "" {
		c.Auth.ClientSecret = clientSecret
	}
	if redirect := os.Getenv("HAZMATE_REDIRECT_URI"); redirect != "" {
		c.Auth.RedirectURI = redirect
	}
	if siteID := os.Getenv("HAZMATE_SITE_ID"); siteID != "" {
		c.Collection.SiteID = siteID
	}

	if target := os.Getenv("HAZMATE_TARGET_SIZE"); target != "" {
		var val int
		fmt.Sscanf(target, "%d", &val)
		if val > 0 {
			c.Collection.TargetSize = val
		}
	}
	if strategy := os.Getenv("HAZMATE_STRATEGY"); strategy != "" {
		c.Collection.Strategy = strings.ToLower(strategy)
	}
	if parallelism := os.Getenv("HAZMATE_PARALLELISM"); parallelism != "" {
		var val int
		fmt.Sscanf(parallelism, "%d", &val)
		if val > 0 {
			c.Collection.Parallelism = val
		}
	}

	if rpm := os.Getenv("HAZMATE_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	if outputDir := os.Getenv("HAZMATE_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}
	if logLevel := os.Getenv("HAZMATE_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".hazmate.yaml",
		".hazmate.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "hazmate", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "hazmate", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".hazmate.yaml"),
		filepath.Join(os.Getenv("HOME"), ".hazmate.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.ClientID == "" {
		errs = append(errs, errors.New("OAuth client ID is required"))
	}
	if c.Auth.ClientSecret == "" {
		errs = append(errs, errors.New("OAuth client secret is required"))
	}
	if c.Auth.SafetyMargin <= 0 {
		errs = append(errs, errors.New("credential safety margin must be positive"))
	}

	if c.Collection.SiteID == "" {
		errs = append(errs, errors.New("site ID is required"))
	}
	if c.Collection.TargetSize <= 0 {
		errs = append(errs, errors.New("target size must be positive"))
	}
	if c.Collection.Strategy != StrategyBalance && c.Collection.Strategy != StrategySpeed {
		errs = append(errs, fmt.Errorf("strategy must be %q or %q", StrategyBalance, StrategySpeed))
	}
	if c.Collection.Parallelism <= 0 {
		errs = append(errs, errors.New("parallelism must be positive"))
	}
	if c.Collection.Parallelism > 16 {
		errs = append(errs, errors.New("parallelism should not exceed 16"))
	}
	if c.Collection.PageSize <= 0 || c.Collection.PageSize > 50 {
		errs = append(errs, errors.New("page size must be between 1 and 50"))
	}
	if c.Collection.SpeedPageSize <= 0 || c.Collection.SpeedPageSize > 50 {
		errs = append(errs, errors.New("speed page size must be between 1 and 50"))
	}
	if c.Collection.FairnessTolerance < 0 || c.Collection.FairnessTolerance > 1 {
		errs = append(errs, errors.New("fairness tolerance must be a fraction between 0 and 1"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.MaxAttempts <= 0 {
		errs = append(errs, errors.New("rate limit max attempts must be positive"))
	}
	if c.RateLimit.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be at least 1"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry max attempts cannot be negative"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.DatasetFile == "" {
		errs = append(errs, errors.New("dataset file name is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if target, ok := flags["target-size"].(int); ok && target > 0 {
		c.Collection.TargetSize = target
	}
	if strategy, ok := flags["strategy"].(string); ok && strategy != "" {
		c.Collection.Strategy = strings.ToLower(strategy)
	}
	if parallelism, ok := flags["parallelism"].(int); ok && parallelism > 0 {
		c.Collection.Parallelism = parallelism
	}
	if siteID, ok := flags["site"].(string); ok && siteID != "" {
		c.Collection.SiteID = siteID
	}
	if catalogFile, ok := flags["catalog"].(string); ok && catalogFile != "" {
		c.Collection.CatalogFile = catalogFile
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if metricsAddr, ok := flags["metrics-addr"].(string); ok && metricsAddr != "" {
		c.Output.MetricsAddr = metricsAddr
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if deadline, ok := flags["deadline"].(time.Duration); ok && deadline > 0 {
		c.Collection.Deadline = deadline
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Collection.MaxPages = maxPages
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".hazmate.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
