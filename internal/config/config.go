package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/gitgrab/internal/inventory"
)

// Config defines configuration for the gitgrab CLI.
type Config struct {
	RepoURL     string        `yaml:"repo_url"`
	Token       string        `yaml:"token"`
	Paths       []string      `yaml:"paths"`
	Version     string        `yaml:"version"`
	VersionType string        `yaml:"version_type"`
	Dest        string        `yaml:"dest"`
	Parallel    int           `yaml:"parallel"`
	APIVersion  string        `yaml:"api_version"`
	Timeout     time.Duration `yaml:"timeout"`
	DedupeBy    string        `yaml:"dedupe_by"`
	Progress    bool          `yaml:"progress"`
	Strict      bool          `yaml:"strict"`
	Telemetry   bool          `yaml:"telemetry"`
	Retry       RetryConfig   `yaml:"retry"`
	Log         LogConfig     `yaml:"log"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Version:     "master",
		VersionType: "branch",
		Dest:        "drop",
		Parallel:    1,
		APIVersion:  "6.0",
		Timeout:     30 * time.Second,
		DedupeBy:    string(inventory.IdentityObjectID),
		Retry: RetryConfig{
			Attempts: 2,
			Delay:    time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	RepoURL     string          `yaml:"repo_url"`
	Token       string          `yaml:"token"`
	Paths       []string        `yaml:"paths"`
	Version     string          `yaml:"version"`
	VersionType string          `yaml:"version_type"`
	Dest        string          `yaml:"dest"`
	Parallel    int             `yaml:"parallel"`
	APIVersion  string          `yaml:"api_version"`
	Timeout     string          `yaml:"timeout"`
	DedupeBy    string          `yaml:"dedupe_by"`
	Progress    bool            `yaml:"progress"`
	Strict      bool            `yaml:"strict"`
	Telemetry   bool            `yaml:"telemetry"`
	Retry       yamlRetryConfig `yaml:"retry"`
	Log         LogConfig       `yaml:"log"`
}

type yamlRetryConfig struct {
	Attempts *int   `yaml:"attempts"` // nil when unset; 0 disables retries
	Delay    string `yaml:"delay"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.RepoURL != "" {
		cfg.RepoURL = yc.RepoURL
	}
	if yc.Token != "" {
		cfg.Token = yc.Token
	}
	if len(yc.Paths) > 0 {
		cfg.Paths = yc.Paths
	}
	if yc.Version != "" {
		cfg.Version = yc.Version
	}
	if yc.VersionType != "" {
		cfg.VersionType = yc.VersionType
	}
	if yc.Dest != "" {
		cfg.Dest = yc.Dest
	}
	if yc.Parallel != 0 {
		cfg.Parallel = yc.Parallel
	}
	if yc.APIVersion != "" {
		cfg.APIVersion = yc.APIVersion
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.DedupeBy != "" {
		cfg.DedupeBy = yc.DedupeBy
	}
	cfg.Progress = yc.Progress
	cfg.Strict = yc.Strict
	cfg.Telemetry = yc.Telemetry
	if yc.Retry.Attempts != nil {
		cfg.Retry.Attempts = *yc.Retry.Attempts
	}
	if yc.Retry.Delay != "" {
		d, err := time.ParseDuration(yc.Retry.Delay)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.delay: %w", err)
		}
		cfg.Retry.Delay = d
	}
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	if yc.Log.Format != "" {
		cfg.Log.Format = yc.Log.Format
	}
	if yc.Log.File != "" {
		cfg.Log.File = yc.Log.File
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the GITGRAB_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("GITGRAB_REPO_URL"); v != "" {
		c.RepoURL = v
	}
	if v := os.Getenv("GITGRAB_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("GITGRAB_PATHS"); v != "" {
		c.Paths = SplitPaths(v)
	}
	if v := os.Getenv("GITGRAB_VERSION"); v != "" {
		c.Version = v
	}
	if v := os.Getenv("GITGRAB_VERSION_TYPE"); v != "" {
		c.VersionType = v
	}
	if v := os.Getenv("GITGRAB_DEST"); v != "" {
		c.Dest = v
	}
	if v := os.Getenv("GITGRAB_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GITGRAB_PARALLEL: %w", err)
		}
		c.Parallel = n
	}
	if v := os.Getenv("GITGRAB_API_VERSION"); v != "" {
		c.APIVersion = v
	}
	if v := os.Getenv("GITGRAB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse GITGRAB_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("GITGRAB_DEDUPE_BY"); v != "" {
		c.DedupeBy = v
	}
	if v := os.Getenv("GITGRAB_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("GITGRAB_STRICT"); v != "" {
		c.Strict = v == "true" || v == "1"
	}
	if v := os.Getenv("GITGRAB_TELEMETRY"); v != "" {
		c.Telemetry = v == "true" || v == "1"
	}
	if v := os.Getenv("GITGRAB_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse GITGRAB_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("GITGRAB_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse GITGRAB_RETRY_DELAY: %w", err)
		}
		c.Retry.Delay = d
	}
	if v := os.Getenv("GITGRAB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GITGRAB_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("GITGRAB_LOG_FILE"); v != "" {
		c.Log.File = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RepoURL == "" {
		return errors.New("config: repo URL is required")
	}
	if !strings.HasPrefix(c.RepoURL, "http://") && !strings.HasPrefix(c.RepoURL, "https://") {
		return fmt.Errorf("config: repo URL %q must be http or https", c.RepoURL)
	}
	if c.Token == "" {
		return errors.New("config: token is required")
	}
	if len(c.Paths) == 0 {
		return errors.New("config: at least one path is required")
	}
	if c.Version == "" {
		return errors.New("config: version is required")
	}
	if c.Dest == "" {
		return errors.New("config: dest is required")
	}
	if c.Parallel <= 0 {
		return errors.New("config: parallel must be positive")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry attempts must not be negative")
	}
	if c.Retry.Delay < 0 {
		return errors.New("config: retry delay must not be negative")
	}
	if _, ok := inventory.ParseIdentityKey(c.DedupeBy); !ok {
		return fmt.Errorf("config: dedupe_by must be %q or %q", inventory.IdentityObjectID, inventory.IdentityPath)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.RepoURL != "" {
		c.RepoURL = override.RepoURL
	}
	if override.Token != "" {
		c.Token = override.Token
	}
	if len(override.Paths) > 0 {
		c.Paths = override.Paths
	}
	if override.Version != "" {
		c.Version = override.Version
	}
	if override.VersionType != "" {
		c.VersionType = override.VersionType
	}
	if override.Dest != "" {
		c.Dest = override.Dest
	}
	if override.Parallel != 0 {
		c.Parallel = override.Parallel
	}
	if override.APIVersion != "" {
		c.APIVersion = override.APIVersion
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.DedupeBy != "" {
		c.DedupeBy = override.DedupeBy
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Strict {
		c.Strict = override.Strict
	}
	if override.Telemetry {
		c.Telemetry = override.Telemetry
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Delay != 0 {
		c.Retry.Delay = override.Retry.Delay
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Log.File != "" {
		c.Log.File = override.Log.File
	}
	return c
}

// SplitPaths splits a comma-separated path list, trimming whitespace and
// dropping empty elements.
func SplitPaths(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var windowsEnvRef = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// ExpandPath expands $VAR, ${VAR} and %VAR% references in p. Unset
// %VAR% references are left as written.
func ExpandPath(p string) string {
	p = windowsEnvRef.ReplaceAllStringFunc(p, func(ref string) string {
		if v, ok := os.LookupEnv(ref[1 : len(ref)-1]); ok {
			return v
		}
		return ref
	})
	return os.ExpandEnv(p)
}

// MaskToken replaces every character of a secret with '*'.
func MaskToken(token string) string {
	return strings.Repeat("*", len(token))
}
