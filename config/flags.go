package config

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jnwhiteh/sectorfs/debug"
)

// Flags are the options shared by every command-line tool. Flags given on
// the command line override everything Load reads.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{envVarPrefix + "_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "image",
			Aliases: []string{"f"},
			Usage:   "the disk image",
		},
		&cli.IntFlag{
			Name:  "cache",
			Usage: "number of sectors in the buffer cache",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
	}
}

// FromContext loads the configuration named by the --config flag, applies
// the remaining flags on top and installs the logger.
func FromContext(ctx *cli.Context) (*Config, error) {
	c, err := Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("image") {
		c.Image = ctx.String("image")
	}
	if ctx.IsSet("cache") {
		c.CacheSectors = ctx.Int("cache")
	}
	if ctx.IsSet("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	level, err := debug.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	debug.SetupLogging(os.Stderr, level)
	return c, nil
}
