// This command creates a disk image holding an empty file system with only
// a root directory.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/config"
	"github.com/jnwhiteh/sectorfs/device"
	"github.com/jnwhiteh/sectorfs/fs"
)

func main() {
	app := cli.App{
		Name:  "mkfs",
		Usage: "create a new file system image",
		Flags: append(config.Flags(),
			&cli.UintFlag{
				Name:    "sectors",
				Aliases: []string{"n"},
				Usage:   "size of the image in 512-byte sectors",
			},
		),
		Action: mkfs,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mkfs(ctx *cli.Context) error {
	c, err := config.FromContext(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("sectors") {
		c.Sectors = uint32(ctx.Uint("sectors"))
	}

	dev, err := device.CreateFileDevice(c.Image, c.Sectors)
	if err != nil {
		return fmt.Errorf("creating image: %w", err)
	}
	defer dev.Close()

	fsys, err := fs.Format(dev, c.CacheSectors)
	if err != nil {
		return fmt.Errorf("formatting %s: %w", c.Image, err)
	}
	free := fsys.Free()
	if err := fsys.Unmount(); err != nil {
		return err
	}
	if err := dev.Sync(); err != nil {
		return fmt.Errorf("syncing image: %w", err)
	}

	fmt.Printf("%s: %d sectors (%s), %s free\n",
		c.Image,
		c.Sectors,
		humanize.Bytes(uint64(c.Sectors)*common.SectorSize),
		humanize.Bytes(uint64(free)*common.SectorSize),
	)
	return nil
}
