package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// decodeDuration parses a YAML duration node. Accepts Go duration strings
// ("30s", "5m") and bare integers, which are read as seconds.
func decodeDuration(node *yaml.Node, out *time.Duration) error {
	var s string
	if node.Tag != "!!int" && node.Decode(&s) == nil {
		if s == "" {
			*out = 0
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*out = d
		return nil
	}

	var seconds int64
	if err := node.Decode(&seconds); err == nil {
		*out = time.Duration(seconds) * time.Second
		return nil
	}

	return fmt.Errorf("invalid duration value on line %d", node.Line)
}

// UnmarshalYAML decodes auth configuration, accepting humane duration strings
func (a *AuthConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		ClientID     *string    `yaml:"client_id"`
		ClientSecret *string    `yaml:"client_secret"`
		RedirectURI  *string    `yaml:"redirect_uri"`
		TokenFile    *string    `yaml:"token_file"`
		SafetyMargin yaml.Node `yaml:"safety_margin"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.ClientID != nil {
		a.ClientID = *aux.ClientID
	}
	if aux.ClientSecret != nil {
		a.ClientSecret = *aux.ClientSecret
	}
	if aux.RedirectURI != nil {
		a.RedirectURI = *aux.RedirectURI
	}
	if aux.TokenFile != nil {
		a.TokenFile = *aux.TokenFile
	}
	if !aux.SafetyMargin.IsZero() {
		return decodeDuration(&aux.SafetyMargin, &a.SafetyMargin)
	}
	return nil
}

// MarshalYAML encodes auth configuration with durations as strings
func (a AuthConfig) MarshalYAML() (interface{}, error) {
	return struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURI  string `yaml:"redirect_uri"`
		TokenFile    string `yaml:"token_file"`
		SafetyMargin string `yaml:"safety_margin"`
	}{a.ClientID, a.ClientSecret, a.RedirectURI, a.TokenFile, a.SafetyMargin.String()}, nil
}

// UnmarshalYAML decodes collection configuration, accepting humane duration
// strings for the deadline
func (c *CollectionConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		SiteID            *string    `yaml:"site_id"`
		TargetSize        *int       `yaml:"target_size"`
		Strategy          *string    `yaml:"strategy"`
		Parallelism       *int       `yaml:"parallelism"`
		PageSize          *int       `yaml:"page_size"`
		SpeedPageSize     *int       `yaml:"speed_page_size"`
		FairnessTolerance *float64   `yaml:"fairness_tolerance"`
		MaxPages          *int       `yaml:"max_pages"`
		Deadline          yaml.Node `yaml:"deadline"`
		CatalogFile       *string    `yaml:"catalog_file"`
		CheckpointEvery   *int       `yaml:"checkpoint_every"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.SiteID != nil {
		c.SiteID = *aux.SiteID
	}
	if aux.TargetSize != nil {
		c.TargetSize = *aux.TargetSize
	}
	if aux.Strategy != nil {
		c.Strategy = *aux.Strategy
	}
	if aux.Parallelism != nil {
		c.Parallelism = *aux.Parallelism
	}
	if aux.PageSize != nil {
		c.PageSize = *aux.PageSize
	}
	if aux.SpeedPageSize != nil {
		c.SpeedPageSize = *aux.SpeedPageSize
	}
	if aux.FairnessTolerance != nil {
		c.FairnessTolerance = *aux.FairnessTolerance
	}
	if aux.MaxPages != nil {
		c.MaxPages = *aux.MaxPages
	}
	if aux.CatalogFile != nil {
		c.CatalogFile = *aux.CatalogFile
	}
	if aux.CheckpointEvery != nil {
		c.CheckpointEvery = *aux.CheckpointEvery
	}
	if !aux.Deadline.IsZero() {
		return decodeDuration(&aux.Deadline, &c.Deadline)
	}
	return nil
}

// MarshalYAML encodes collection configuration with durations as strings
func (c CollectionConfig) MarshalYAML() (interface{}, error) {
	return struct {
		SiteID            string  `yaml:"site_id"`
		TargetSize        int     `yaml:"target_size"`
		Strategy          string  `yaml:"strategy"`
		Parallelism       int     `yaml:"parallelism"`
		PageSize          int     `yaml:"page_size"`
		SpeedPageSize     int     `yaml:"speed_page_size"`
		FairnessTolerance float64 `yaml:"fairness_tolerance"`
		MaxPages          int     `yaml:"max_pages"`
		Deadline          string  `yaml:"deadline"`
		CatalogFile       string  `yaml:"catalog_file"`
		CheckpointEvery   int     `yaml:"checkpoint_every"`
	}{c.SiteID, c.TargetSize, c.Strategy, c.Parallelism, c.PageSize, c.SpeedPageSize,
		c.FairnessTolerance, c.MaxPages, c.Deadline.String(), c.CatalogFile, c.CheckpointEvery}, nil
}

// UnmarshalYAML decodes rate limit configuration, accepting humane duration
// strings for the backoff bounds
func (r *RateLimitConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		RequestsPerMinute *int       `yaml:"requests_per_minute"`
		MaxAttempts       *int       `yaml:"max_attempts"`
		BackoffBase       yaml.Node `yaml:"backoff_base"`
		BackoffMax        yaml.Node `yaml:"backoff_max"`
		BackoffMultiplier *float64   `yaml:"backoff_multiplier"`
		JitterFactor      *float64   `yaml:"jitter_factor"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.RequestsPerMinute != nil {
		r.RequestsPerMinute = *aux.RequestsPerMinute
	}
	if aux.MaxAttempts != nil {
		r.MaxAttempts = *aux.MaxAttempts
	}
	if aux.BackoffMultiplier != nil {
		r.BackoffMultiplier = *aux.BackoffMultiplier
	}
	if aux.JitterFactor != nil {
		r.JitterFactor = *aux.JitterFactor
	}
	if !aux.BackoffBase.IsZero() {
		if err := decodeDuration(&aux.BackoffBase, &r.BackoffBase); err != nil {
			return err
		}
	}
	if !aux.BackoffMax.IsZero() {
		if err := decodeDuration(&aux.BackoffMax, &r.BackoffMax); err != nil {
			return err
		}
	}
	return nil
}

// MarshalYAML encodes rate limit configuration with durations as strings
func (r RateLimitConfig) MarshalYAML() (interface{}, error) {
	return struct {
		RequestsPerMinute int     `yaml:"requests_per_minute"`
		MaxAttempts       int     `yaml:"max_attempts"`
		BackoffBase       string  `yaml:"backoff_base"`
		BackoffMax        string  `yaml:"backoff_max"`
		BackoffMultiplier float64 `yaml:"backoff_multiplier"`
		JitterFactor      float64 `yaml:"jitter_factor"`
	}{r.RequestsPerMinute, r.MaxAttempts, r.BackoffBase.String(), r.BackoffMax.String(),
		r.BackoffMultiplier, r.JitterFactor}, nil
}

// UnmarshalYAML decodes retry configuration, accepting humane duration strings
func (r *RetryConfig) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		MaxAttempts *int       `yaml:"max_attempts"`
		BaseDelay   yaml.Node `yaml:"base_delay"`
		MaxDelay    yaml.Node `yaml:"max_delay"`
		Multiplier  *float64   `yaml:"multiplier"`
		Jitter      *float64   `yaml:"jitter"`
		Timeout     yaml.Node `yaml:"timeout"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.MaxAttempts != nil {
		r.MaxAttempts = *aux.MaxAttempts
	}
	if aux.Multiplier != nil {
		r.Multiplier = *aux.Multiplier
	}
	if aux.Jitter != nil {
		r.Jitter = *aux.Jitter
	}
	if !aux.BaseDelay.IsZero() {
		if err := decodeDuration(&aux.BaseDelay, &r.BaseDelay); err != nil {
			return err
		}
	}
	if !aux.MaxDelay.IsZero() {
		if err := decodeDuration(&aux.MaxDelay, &r.MaxDelay); err != nil {
			return err
		}
	}
	if !aux.Timeout.IsZero() {
		if err := decodeDuration(&aux.Timeout, &r.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// MarshalYAML encodes retry configuration with durations as strings
func (r RetryConfig) MarshalYAML() (interface{}, error) {
	return struct {
		MaxAttempts int     `yaml:"max_attempts"`
		BaseDelay   string  `yaml:"base_delay"`
		MaxDelay    string  `yaml:"max_delay"`
		Multiplier  float64 `yaml:"multiplier"`
		Jitter      float64 `yaml:"jitter"`
		Timeout     string  `yaml:"timeout"`
	}{r.MaxAttempts, r.BaseDelay.String(), r.MaxDelay.String(), r.Multiplier, r.Jitter,
		r.Timeout.String()}, nil
}
