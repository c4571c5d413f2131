// This command checks the consistency of a file system image: every inode
// reachable from the root must be well formed, names must be unique, and the
// free map must mark exactly the sectors the inodes own.
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
	"github.com/jnwhiteh/sectorfs/fsck"
)

func main() {
	app := cli.App{
		Name:  "fsck",
		Usage: "check a file system image",
		Flags: append(config.Flags(),
			&cli.BoolFlag{
				Name:    "listing",
				Aliases: []string{"l"},
				Usage:   "show a listing of every file",
			},
			&cli.BoolFlag{
				Name:  "digests",
				Usage: "show a BLAKE3 digest of every file (implies --listing)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "parallel digest workers",
				Value: 4,
			},
		),
		Action: check,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func check(ctx *cli.Context) error {
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
	defer fsys.Unmount()

	report, err := fsck.Check(ctx.Context, fsys, fsck.Options{
		Digests: ctx.Bool("digests"),
		Workers: ctx.Int("workers"),
	})
	if err != nil {
		return err
	}

	if ctx.Bool("listing") || ctx.Bool("digests") {
		for _, e := range report.Entries {
			kind := "-"
			if e.IsDir {
				kind = "d"
			}
			fmt.Printf("%s %6d %10s %s", kind, e.Inumber, humanize.Bytes(uint64(e.Length)), e.Path)
			if e.Digest != "" {
				fmt.Printf("  %s", e.Digest)
			}
			fmt.Println()
		}
		fmt.Println()
	}

	fmt.Printf("%d files and directories\n", len(report.Entries))
	fmt.Printf("%d of %d sectors in use (%s)\n", report.Used, report.Sectors,
		humanize.Bytes(uint64(report.Used)*common.SectorSize))
	if report.Pending > 0 {
		fmt.Printf("%d removed inodes still open\n", report.Pending)
	}

	if report.OK() {
		fmt.Println("file system is clean")
		return nil
	}
	for _, p := range report.Problems {
		fmt.Println(p)
	}
	return cli.Exit(fmt.Sprintf("%d problems found", len(report.Problems)), 1)
}
