// Package fsck checks a mounted file system for consistency: every sector
// marked in the free map must belong to exactly one live inode (or be
// reserved), every inode must carry the right magic, and names must be
// unique within each directory.
package fsck

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/dir"
	"github.com/jnwhiteh/sectorfs/freemap"
	"github.com/jnwhiteh/sectorfs/fs"
	"github.com/jnwhiteh/sectorfs/inode"
)

type Kind int

const (
	BadMagic      Kind = iota // inode record failed to load
	DoubleClaim               // sector owned by two inodes
	Leaked                    // marked in use, owned by nobody
	Unmarked                  // owned by an inode, marked free
	DuplicateName             // two in-use entries with one name
	BadLength                 // data sectors do not match the length
	BadLink                   // "." or ".." points somewhere odd
)

var kindNames = [...]string{
	BadMagic:      "bad magic",
	DoubleClaim:   "double claim",
	Leaked:        "leaked sector",
	Unmarked:      "unmarked sector",
	DuplicateName: "duplicate name",
	BadLength:     "bad length",
	BadLink:       "bad link",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Problem struct {
	Kind   Kind
	Path   string
	Sector uint32
	Detail string
}

func (p Problem) String() string {
	s := fmt.Sprintf("%s: sector %d", p.Kind, p.Sector)
	if p.Path != "" {
		s += " (" + p.Path + ")"
	}
	if p.Detail != "" {
		s += ": " + p.Detail
	}
	return s
}

// Entry describes one reachable file or directory.
type Entry struct {
	Path    string
	Inumber uint32
	Length  int64
	IsDir   bool
	Sectors int    // sectors owned, including the inode itself
	Digest  string // hex BLAKE3 of the contents; regular files only
}

type Report struct {
	Entries  []Entry
	Problems []Problem

	Sectors  uint32 // size of the device
	Used     int    // sectors marked in the free map
	Owned    int    // sectors owned by inodes, reachable or pending deletion
	Pending  int    // removed inodes still held open
	Reserved int
}

func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

type Options struct {
	Digests bool // hash the contents of every regular file
	Workers int  // parallel digest workers, 0 for a default

	// FromDevice drops the buffer cache first, so the check sees exactly
	// what is on the device.
	FromDevice bool
}

type checker struct {
	t      *inode.Table
	fm     *freemap.FreeMap
	report *Report
	owner  map[uint32]string // sector -> path of the inode that owns it
}

// Check walks the file system from the root. The file system is locked for
// the duration.
func Check(ctx context.Context, fsys *fs.FileSystem, opts Options) (*Report, error) {
	if opts.FromDevice {
		fsys.DropCache()
	}

	report := &Report{}
	err := fsys.Inspect(func(t *inode.Table, fm *freemap.FreeMap) error {
		c := &checker{
			t:      t,
			fm:     fm,
			report: report,
			owner:  make(map[uint32]string),
		}
		return c.run(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (c *checker) problem(kind Kind, path string, sector uint32, format string, args ...interface{}) {
	c.report.Problems = append(c.report.Problems, Problem{
		Kind:   kind,
		Path:   path,
		Sector: sector,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (c *checker) run(ctx context.Context, opts Options) error {
	c.report.Sectors = c.fm.Sectors()

	// The free map file is not in any directory
	if d, err := c.t.Stat(common.FreeMapSector); err != nil {
		c.problem(BadMagic, "<free map>", common.FreeMapSector, "%v", err)
	} else {
		c.claim("<free map>", common.FreeMapSector, &d)
	}
	c.walk("/", common.RootDirSector, common.RootDirSector)

	// Removed inodes that are still open own their sectors until closed
	for _, rip := range c.t.OpenInodes() {
		if rip.Removed() {
			d := rip.Disk()
			c.claim(fmt.Sprintf("<pending %d>", rip.Inumber()), rip.Inumber(), &d)
			c.report.Pending++
		}
	}

	c.conservation()
	sort.Slice(c.report.Entries, func(i, j int) bool {
		return c.report.Entries[i].Path < c.report.Entries[j].Path
	})

	if opts.Digests {
		return c.digests(ctx, opts.Workers)
	}
	return nil
}

// claim records every sector owned by the inode at sector.
func (c *checker) claim(path string, sector uint32, d *common.DiskInode) int {
	list := inode.Sectors(sector, d, c.t.ReadIndex)
	for _, s := range list {
		if prev, ok := c.owner[s]; ok {
			c.problem(DoubleClaim, path, s, "also owned by %s", prev)
			continue
		}
		c.owner[s] = path
	}

	data := len(list) - 1
	if d.Indirect != common.NoSector {
		data--
	}
	if d.DoubleIndirect != common.NoSector {
		data--
		for _, second := range c.t.ReadIndex(d.DoubleIndirect) {
			if second != common.NoSector {
				data--
			}
		}
	}
	if want := int((int64(d.Length) + common.SectorSize - 1) / common.SectorSize); data != want {
		c.problem(BadLength, path, sector, "%d data sectors for %d bytes", data, d.Length)
	}
	return len(list)
}

func (c *checker) walk(dirPath string, sector, parent uint32) {
	d, err := c.t.Stat(sector)
	if err != nil {
		c.problem(BadMagic, dirPath, sector, "%v", err)
		return
	}
	n := c.claim(dirPath, sector, &d)
	c.report.Entries = append(c.report.Entries, Entry{
		Path:    dirPath,
		Inumber: sector,
		Length:  int64(d.Length),
		IsDir:   true,
		Sectors: n,
	})

	rip, err := c.t.Open(sector)
	if err != nil {
		c.problem(BadMagic, dirPath, sector, "%v", err)
		return
	}
	dp, err := dir.Open(c.t, rip)
	if err != nil {
		c.problem(BadLink, dirPath, sector, "%v", err)
		return
	}
	entries := dp.Entries()
	dp.Close()

	seen := make(map[string]bool)
	for _, e := range entries {
		name := e.NameString()
		if seen[name] {
			c.problem(DuplicateName, dirPath, sector, "%q", name)
			continue
		}
		seen[name] = true

		switch name {
		case dir.Self:
			if e.Sector != sector {
				c.problem(BadLink, dirPath, sector, "\".\" points at %d", e.Sector)
			}
			continue
		case dir.Parent:
			if e.Sector != parent {
				c.problem(BadLink, dirPath, sector, "\"..\" points at %d, want %d", e.Sector, parent)
			}
			continue
		}

		child := path.Join(dirPath, name)
		if e.IsDir != 0 {
			c.walk(child, e.Sector, sector)
			continue
		}

		fd, err := c.t.Stat(e.Sector)
		if err != nil {
			c.problem(BadMagic, child, e.Sector, "%v", err)
			continue
		}
		n := c.claim(child, e.Sector, &fd)
		c.report.Entries = append(c.report.Entries, Entry{
			Path:    child,
			Inumber: e.Sector,
			Length:  int64(fd.Length),
			Sectors: n,
		})
	}
}

// conservation compares the sectors owned by inodes with the free map.
func (c *checker) conservation() {
	reserved := map[uint32]bool{common.FreeMapSector: true, common.RootDirSector: true}
	c.report.Reserved = len(reserved)
	c.report.Owned = len(c.owner)

	used := c.fm.Used()
	c.report.Used = len(used)
	for _, s := range used {
		if _, ok := c.owner[s]; !ok && !reserved[s] {
			c.problem(Leaked, "", s, "")
		}
	}
	for s, owner := range c.owner {
		if !c.fm.InUse(s) {
			c.problem(Unmarked, owner, s, "")
		}
	}
	sort.SliceStable(c.report.Problems, func(i, j int) bool {
		return c.report.Problems[i].Sector < c.report.Problems[j].Sector
	})
}

// inodeReader streams the contents of an inode.
type inodeReader struct {
	rip *inode.Inode
	off int64
}

func (r *inodeReader) Read(buf []byte) (int, error) {
	n := r.rip.ReadAt(buf, r.off)
	r.off += int64(n)
	if n == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *checker) digests(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 4
	}

	// Open everything up front; the table is not safe for concurrent use,
	// but reading distinct open inodes is.
	var open []*inode.Inode
	var targets []*Entry
	for i := range c.report.Entries {
		e := &c.report.Entries[i]
		if e.IsDir {
			continue
		}
		rip, err := c.t.Open(e.Inumber)
		if err != nil {
			continue
		}
		open = append(open, rip)
		targets = append(targets, e)
	}
	defer func() {
		for _, rip := range open {
			rip.Close()
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range targets {
		e, rip := targets[i], open[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h := blake3.New()
			if _, err := io.Copy(h, &inodeReader{rip: rip}); err != nil {
				return fmt.Errorf("hashing %s: %w", e.Path, err)
			}
			e.Digest = fmt.Sprintf("%x", h.Sum(nil))
			return nil
		})
	}
	return g.Wait()
}
