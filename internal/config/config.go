// Package config provides configuration loading and validation for jitdiff.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/dasmtools/jitdiff/pkg/metric"
)

// Sentinel validation errors.
var (
	ErrInvalidCount   = errors.New("count must not be negative")
	ErrInvalidWorkers = errors.New("workers must be positive")
	ErrEmptyExtension = errors.New("file extension must not be empty")
	ErrUnknownMetric  = errors.New("unknown metric name")
)

// Default configuration values.
const (
	defaultCount     = 20
	defaultExtension = ".dasm"
	defaultMetric    = metric.CodeSize
)

// Config holds all configuration for a jitdiff run.
type Config struct {
	Diff    DiffConfig    `mapstructure:"diff"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DiffConfig holds defaults for the diff command.
type DiffConfig struct {
	Extension string   `mapstructure:"extension"`
	Metrics   []string `mapstructure:"metrics"`
	Count     int      `mapstructure:"count"`
	Workers   int      `mapstructure:"workers"`
	Recursive bool     `mapstructure:"recursive"`
	NoColor   bool     `mapstructure:"no_color"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty
// configPath falls back to .jitdiff.yaml in the working directory or the
// home directory, and a missing file is not an error.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(".jitdiff")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME")
	}

	viperCfg.SetEnvPrefix("JITDIFF")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validate(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("diff.count", defaultCount)
	viperCfg.SetDefault("diff.extension", defaultExtension)
	viperCfg.SetDefault("diff.metrics", []string{defaultMetric})
	viperCfg.SetDefault("diff.workers", runtime.GOMAXPROCS(0))
	viperCfg.SetDefault("diff.recursive", false)
	viperCfg.SetDefault("diff.no_color", false)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
}

// validate validates the configuration.
func validate(config *Config) error {
	if config.Diff.Count < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, config.Diff.Count)
	}

	if config.Diff.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Diff.Workers)
	}

	if config.Diff.Extension == "" {
		return ErrEmptyExtension
	}

	catalog := metric.NewCatalog()
	for _, name := range config.Diff.Metrics {
		if _, _, ok := catalog.Lookup(name); !ok {
			return fmt.Errorf("%w: %q (available: %s)", ErrUnknownMetric, name, catalog.Names())
		}
	}

	return nil
}
