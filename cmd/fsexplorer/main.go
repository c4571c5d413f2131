package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jnwhiteh/sectorfs/config"
	"github.com/jnwhiteh/sectorfs/device"
	"github.com/jnwhiteh/sectorfs/fs"
)

func main() {
	app := cli.App{
		Name:   "fsexplorer",
		Usage:  "explore and modify a file system image interactively",
		Flags:  config.Flags(),
		Action: explore,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func explore(ctx *cli.Context) error {
	c, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	dev, err := device.OpenFileDevice(c.Image)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer dev.Close()

	fsys, err := fs.Mount(dev, c.CacheSectors)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", c.Image, err)
	}

	fmt.Println("Welcome to the file system explorer!")
	fmt.Printf("Attached to %s (%d sectors)\n", c.Image, dev.Sectors())
	fmt.Println("Enter '?' for a list of commands.")

	ex, err := newExplorer(fsys, os.Stdout)
	if err != nil {
		return err
	}
	ex.repl(os.Stdin, true)
	ex.close()

	if err := fsys.Unmount(); err != nil {
		return err
	}
	return dev.Sync()
}
