// Package config loads nxcheck settings from nxcheck.yaml and NXCHECK_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/nxcheck/internal/dat"
	"github.com/roach88/nxcheck/internal/external"
)

// EnvPrefix prefixes environment overrides: NXCHECK_TOLERANCE,
// NXCHECK_CONVERTER_COMMAND and so on.
const EnvPrefix = "NXCHECK"

// Config represents the nxcheck configuration
type Config struct {
	// Tolerance bounds the difference norm of equal .dat values.
	Tolerance float64 `mapstructure:"tolerance"`
	// Schema is a CUE baseline file; empty selects the built-in baseline.
	Schema string `mapstructure:"schema"`
	// Database is the run ledger path; empty disables the ledger.
	Database  string     `mapstructure:"database"`
	Converter ToolConfig `mapstructure:"converter"`
	Validator ToolConfig `mapstructure:"validator"`
}

// ToolConfig configures an external program.
type ToolConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// Tool returns the configured program as an external.Command.
func (t ToolConfig) Tool() external.Command {
	return external.Command{Name: t.Command, Args: append([]string(nil), t.Args...)}
}

// CompareOptions returns the .dat comparison options.
func (c *Config) CompareOptions() dat.Options {
	return dat.Options{Tolerance: c.Tolerance}
}

// Load reads the configuration. An explicit file must exist; otherwise
// nxcheck.yaml in the working directory is used when present.
func Load(file string) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("tolerance", d.Tolerance)
	v.SetDefault("schema", d.Schema)
	v.SetDefault("database", d.Database)
	v.SetDefault("converter.command", d.Converter.Command)
	v.SetDefault("converter.args", d.Converter.Args)
	v.SetDefault("validator.command", d.Validator.Command)
	v.SetDefault("validator.args", d.Validator.Args)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("nxcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured. Load
// starts from it before applying the file and the environment.
func Default() *Config {
	return &Config{
		Tolerance: dat.DefaultTolerance,
		Converter: ToolConfig{Command: external.DefaultConverter.Name, Args: append([]string(nil), external.DefaultConverter.Args...)},
		Validator: ToolConfig{Command: external.DefaultValidator.Name, Args: append([]string(nil), external.DefaultValidator.Args...)},
	}
}

func validate(cfg *Config) error {
	if cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got: %v", cfg.Tolerance)
	}
	if cfg.Converter.Command == "" {
		return fmt.Errorf("converter.command must not be empty")
	}
	if cfg.Validator.Command == "" {
		return fmt.Errorf("validator.command must not be empty")
	}
	return nil
}
