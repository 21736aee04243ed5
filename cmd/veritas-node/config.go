package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/veritasvote/veritas-node/internal"
)

const (
	defaultLogLevel       = "info"
	defaultLogOutput      = "stdout"
	defaultDatadir        = ".veritas" // Will be prefixed with user's home directory
	defaultAnchorInterval = 60 * time.Second
	defaultParallelism    = 8
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	Log     LogConfig
	Anchor  AnchorConfig
	Workers WorkersConfig
	Datadir string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// AnchorConfig holds root anchoring configuration
type AnchorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// WorkersConfig holds submission executor configuration
type WorkersConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	// Get user's home directory for default datadir
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("anchor.interval", defaultAnchorInterval)
	v.SetDefault("workers.parallelism", defaultParallelism)
	v.SetDefault("datadir", defaultDatadirPath)

	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.DurationP("anchor.interval", "a", defaultAnchorInterval, "interval between ledger root anchoring passes")
	flag.IntP("workers.parallelism", "w", defaultParallelism, "max concurrent ledger appends across questions")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for database and ledger streams")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "veritas-node v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: veritas-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, VERITAS_LOG_LEVEL or VERITAS_ANCHOR_INTERVAL\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("VERITAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Workers.Parallelism < 1 {
		return fmt.Errorf("workers.parallelism must be at least 1")
	}
	if cfg.Anchor.Interval < time.Second {
		return fmt.Errorf("anchor.interval must be at least one second")
	}
	return nil
}
