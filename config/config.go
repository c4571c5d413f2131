// Package config loads settings for the command-line tools from an
// optional .env file, an optional YAML file and SECTORFS_* environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/jnwhiteh/sectorfs/common"
)

const envVarPrefix = "SECTORFS"

type Config struct {
	Image        string `envconfig:"IMAGE"         yaml:"image"`
	Sectors      uint32 `envconfig:"SECTORS"       yaml:"sectors"`
	CacheSectors int    `envconfig:"CACHE_SECTORS" yaml:"cacheSectors"`
	LogLevel     string `envconfig:"LOG_LEVEL"     yaml:"logLevel"`
}

func Default() Config {
	return Config{
		Image:        "disk.img",
		Sectors:      8192,
		CacheSectors: common.DefaultCacheSectors,
		LogLevel:     "info",
	}
}

// Load reads configuration from .env in the working directory (if any), then
// the YAML file at path (if path is non-empty and exists), then the
// environment.
func Load(path string) (*Config, error) {
	env, err := godotenv.Read(".env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	// Variables already set in the environment win over .env
	for k, v := range env {
		if _, ok := os.LookupEnv(k); !ok {
			os.Setenv(k, v)
		}
	}

	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("missing required configuration: image / %s_IMAGE", envVarPrefix)
	}
	if c.CacheSectors < 2 {
		return fmt.Errorf("cacheSectors must be at least 2, got %d", c.CacheSectors)
	}
	return nil
}
