// Package config defines configuration structures for the gitgrab CLI.
//
// Configuration can be provided via:
//   - Command-line flags and positional arguments
//   - Environment variables (GITGRAB_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file.
//
// # Structure
//
//	type Config struct {
//	    RepoURL     string
//	    Token       string
//	    Paths       []string
//	    Version     string
//	    VersionType string
//	    Dest        string
//	    Parallel    int
//	    Retry       RetryConfig
//	    Log         LogConfig
//	}
//
//	type RetryConfig struct {
//	    Attempts int
//	    Delay    time.Duration
//	}
package config
