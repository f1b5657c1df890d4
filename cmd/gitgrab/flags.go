package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ligustah/gitgrab/internal/config"
	grabhttp "github.com/ligustah/gitgrab/internal/http"
	"github.com/ligustah/gitgrab/internal/inventory"
)

// sourceFlags are shared by every command that talks to the repository.
type sourceFlags struct {
	configFile    string
	repoURL       string
	token         string
	paths         string
	version       string
	versionType   string
	dest          string
	parallel      int
	apiVersion    string
	timeout       time.Duration
	dedupeBy      string
	retryAttempts int
	retryDelay    time.Duration
	logLevel      string
	logFormat     string
	logFile       string
	telemetry     bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&f.repoURL, "repo", "", "Repository API URL (.../_apis/git/repositories/<name>)")
	fs.StringVar(&f.token, "token", "", "Personal access token")
	fs.StringVar(&f.paths, "paths", "", "Comma-separated repository paths")
	fs.StringVar(&f.version, "version", "", "Branch, tag or commit (default master)")
	fs.StringVar(&f.versionType, "version-type", "", "branch, tag or commit (default branch)")
	fs.StringVar(&f.dest, "dest", "", "Destination directory or bucket URL (default drop)")
	fs.IntVar(&f.parallel, "parallel", 0, "Number of parallel download workers (default 1)")
	fs.StringVar(&f.apiVersion, "api-version", "", "REST api-version parameter (default 6.0)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per-request timeout (default 30s)")
	fs.StringVar(&f.dedupeBy, "dedupe-by", "", "Inventory identity: objectId or path")
	fs.IntVar(&f.retryAttempts, "retry-attempts", 0, "Additional attempts after a failed request (default 2)")
	fs.DurationVar(&f.retryDelay, "retry-delay", 0, "Delay before each retry (default 1s)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "text or json")
	fs.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this file")
	fs.BoolVar(&f.telemetry, "telemetry", false, "Export run metrics over OTLP")
}

// load builds the effective configuration. Later sources win: defaults,
// config file, environment, positional arguments, flags.
func (f *sourceFlags) load(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(f.configFile); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	positional, err := positionalConfig(args)
	if err != nil {
		return config.Config{}, err
	}
	cfg = cfg.Merge(positional)

	cfg = cfg.Merge(config.Config{
		RepoURL:     f.repoURL,
		Token:       f.token,
		Paths:       config.SplitPaths(f.paths),
		Version:     f.version,
		VersionType: f.versionType,
		Dest:        f.dest,
		Parallel:    f.parallel,
		APIVersion:  f.apiVersion,
		Timeout:     f.timeout,
		DedupeBy:    f.dedupeBy,
		Telemetry:   f.telemetry,
		Retry:       config.RetryConfig{Delay: f.retryDelay},
		Log: config.LogConfig{
			Level:  f.logLevel,
			Format: f.logFormat,
			File:   f.logFile,
		},
	})
	// Zero is a meaningful retry count, so Merge cannot carry it.
	if cmd.Flags().Changed("retry-attempts") {
		cfg.Retry.Attempts = f.retryAttempts
	}

	return cfg, cfg.Validate()
}

// positionalConfig maps REPO_URL TOKEN PATH_CSV [VERSION] [VERSION_TYPE]
// [DEST] [PARALLEL]. Empty arguments keep the configured value.
func positionalConfig(args []string) (config.Config, error) {
	var cfg config.Config
	fields := []*string{&cfg.RepoURL, &cfg.Token, nil, &cfg.Version, &cfg.VersionType, &cfg.Dest}
	for i, arg := range args {
		switch {
		case i == 2:
			cfg.Paths = config.SplitPaths(arg)
		case i < len(fields):
			*fields[i] = arg
		case i == len(fields) && arg != "":
			n, err := strconv.Atoi(arg)
			if err != nil {
				return config.Config{}, fmt.Errorf("invalid PARALLEL %q: %w", arg, err)
			}
			cfg.Parallel = n
		}
	}
	return cfg, nil
}

func httpOptions(cfg config.Config) grabhttp.Options {
	opts := grabhttp.DefaultOptions()
	opts.Timeout = cfg.Timeout
	opts.RetryAttempts = cfg.Retry.Attempts
	opts.RetryDelay = cfg.Retry.Delay
	opts.APIVersion = cfg.APIVersion
	if cfg.Parallel > opts.MaxIdleConnsPerHost {
		opts.MaxIdleConnsPerHost = cfg.Parallel
	}
	return opts
}

func inventoryRequest(cfg config.Config) inventory.Request {
	return inventory.Request{
		Paths:       cfg.Paths,
		Version:     cfg.Version,
		VersionType: cfg.VersionType,
	}
}
