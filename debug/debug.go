package debug

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/jnwhiteh/sectorfs/common"
)

// SetupLogging installs a colourised slog handler writing to w.
func SetupLogging(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))
}

// ParseLevel accepts the slog level names (debug, info, warn, error),
// case-insensitively. An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// DumpSector prints the contents of a sector, interpreted as an inode if it
// carries the inode magic and as a run of directory entries otherwise.
func DumpSector(w io.Writer, sector uint32, data []byte) error {
	if len(data) != common.SectorSize {
		return fmt.Errorf("sector %d: %d bytes: %w", sector, len(data), common.ErrInvalid)
	}

	var rip common.DiskInode
	if err := common.Decode(data, &rip); err == nil && rip.Magic == common.InodeMagic {
		dumpInode(w, sector, &rip)
		return nil
	}

	buf := bytes.NewBuffer(nil)
	for i := 0; i+common.DirEntrySize <= len(data); i += common.DirEntrySize {
		var dirent common.DirEntry
		if err := common.Decode(data[i:i+common.DirEntrySize], &dirent); err != nil {
			return err
		}
		if dirent.InUse == 0 {
			continue
		}
		kind := "file"
		if dirent.IsDir != 0 {
			kind = "dir"
		}
		fmt.Fprintf(buf, "Entry %4d: %-16q %-4s at inode %8d\n", i/common.DirEntrySize, dirent.NameString(), kind, dirent.Sector)
	}
	fmt.Fprintf(w, "Sector %d as directory entries:\n%s", sector, buf.String())
	return nil
}

func dumpInode(w io.Writer, sector uint32, rip *common.DiskInode) {
	kind := "file"
	if rip.IsDir != 0 {
		kind = "dir"
	}
	fmt.Fprintf(w, "%8s %-4s %10s %10s %10s\n", "INODE #", "TYPE", "SIZE", "INDIRECT", "DOUBLE")
	fmt.Fprintf(w, "%8d %-4s %10d %10d %10d\n", sector, kind, rip.Length, rip.Indirect, rip.DoubleIndirect)

	var direct []uint32
	for _, s := range rip.Direct {
		if s != common.NoSector {
			direct = append(direct, s)
		}
	}
	fmt.Fprintf(w, "Direct: %v\n", direct)
}
