package config

import (
	"fmt"
	"net/url"
	"time"
)

// Output modes supported by a run. The two modes are mutually exclusive
// and selected once per run, never per record.
const (
	OutputLocal  = "local"
	OutputRemote = "remote"
)

// Config holds ingestion pipeline configuration.
type Config struct {
	BaseURL      string
	Categories   []string
	MaxPages     int
	LimitPerPage int
	Concurrency  int
	RequestDelay time.Duration
	Timeout      time.Duration
	UserAgent    string

	OutputMode string // local or remote
	OutputDir  string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	PostgresDSN string

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the catalog target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://www.fashionnova.com",
		Categories:   []string{"shoes", "bodysuits", "jackets"},
		MaxPages:     3,
		LimitPerPage: 60,
		Concurrency:  5,
		RequestDelay: time.Second,
		Timeout:      30 * time.Second,
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		OutputMode:   OutputLocal,
		OutputDir:    "catalog",
		S3Region:     "us-east-1",
		MetricsAddr:  "",
		Verbose:      false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	for _, category := range c.Categories {
		if category == "" {
			return fmt.Errorf("category cannot be empty")
		}
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.LimitPerPage <= 0 {
		return fmt.Errorf("limit per page must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	switch c.OutputMode {
	case OutputLocal:
		if c.OutputDir == "" {
			return fmt.Errorf("output dir cannot be empty in local mode")
		}
	case OutputRemote:
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 bucket is required in remote mode")
		}
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required in remote mode")
		}
	default:
		return fmt.Errorf("output mode must be local or remote")
	}

	return nil
}
