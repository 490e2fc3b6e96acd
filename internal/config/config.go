// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package config loads the settings of the sqlcheck command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// FileName is the configuration file read from the working directory.
	FileName = "sqlcheck"
	fileType = "yaml"
	envFile  = ".env"
)

// ErrNoDatabaseURL is returned when no database URL is configured.
var ErrNoDatabaseURL = errors.New("no database URL: set database_url in sqlcheck.yaml or DATABASE_URL")

// Config holds the settings of a run.
type Config struct {
	// DatabaseURL locates the database queries are described against.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
	// Output is the base name of the file generated in each package.
	Output string `mapstructure:"output" yaml:"output"`
	// Concurrency bounds the number of queries described at once. Zero
	// means one per CPU.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Patterns are the package patterns scanned for declarations.
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	// Schema lists SQL files run on a SQLite database before queries are
	// described, relative to the project directory.
	Schema []string `mapstructure:"schema" yaml:"schema"`
}

// Load reads the configuration of the project in dir. Values come from, in
// order of precedence, the environment, sqlcheck.yaml, a .env file and the
// defaults. Missing files are not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType(fileType)
	v.AddConfigPath(dir)

	v.SetDefault("output", "sqlcheck_gen.go")
	v.SetDefault("concurrency", 0)
	v.SetDefault("patterns", []string{"./..."})

	dotenv, err := readDotenv(filepath.Join(dir, envFile))
	if err != nil {
		return nil, err
	}
	if url := dotenv.GetString("database_url"); url != "" {
		v.SetDefault("database_url", url)
	}

	v.SetEnvPrefix("sqlcheck")
	v.AutomaticEnv()
	if err := v.BindEnv("database_url", "DATABASE_URL", "SQLCHECK_DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("cannot bind environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	return cfg, nil
}

// readDotenv reads a dotenv file. Keys are lower cased by viper, so
// DATABASE_URL is found as database_url.
func readDotenv(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", envFile, err)
	}
	return v, nil
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrNoDatabaseURL
	}
	if c.Output == "" || filepath.Base(c.Output) != c.Output {
		return fmt.Errorf("output must be a file name, got %q", c.Output)
	}
	if filepath.Ext(c.Output) != ".go" {
		return fmt.Errorf("output %q is not a Go file", c.Output)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}
