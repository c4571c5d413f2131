package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/debug"
	"github.com/jnwhiteh/sectorfs/dir"
	"github.com/jnwhiteh/sectorfs/fs"
)

type explorer struct {
	fsys *fs.FileSystem
	cwd  *dir.Dir
	pwd  string
	out  io.Writer
}

func newExplorer(fsys *fs.FileSystem, out io.Writer) (*explorer, error) {
	root, err := fsys.OpenRoot()
	if err != nil {
		return nil, err
	}
	return &explorer{fsys: fsys, cwd: root, pwd: "/", out: out}, nil
}

func (ex *explorer) close() {
	ex.fsys.CloseDir(ex.cwd)
	ex.cwd = nil
}

type command struct {
	name  string
	args  string
	help  string
	nargs int
	run   func(ex *explorer, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"?", "", "help", 0, (*explorer).help},
		{"ls", "[dir]", "show directory listing", 0, (*explorer).ls},
		{"cd", "dir", "change directory", 1, (*explorer).cd},
		{"pwd", "", "show current directory", 0, (*explorer).printPwd},
		{"mkdir", "dir", "make a directory", 1, (*explorer).mkdir},
		{"cat", "file", "show file contents", 1, (*explorer).cat},
		{"put", "local file", "copy a local file into the image", 2, (*explorer).put},
		{"rm", "path", "remove a file or empty directory", 1, (*explorer).rm},
		{"stat", "path", "describe a file or directory", 1, (*explorer).stat},
		{"df", "", "show free space", 0, (*explorer).df},
		{"dump", "sector", "print the raw contents of a sector", 1, (*explorer).dump},
	}
}

func (ex *explorer) repl(in io.Reader, prompt bool) {
	buf := bufio.NewReader(in)
	for {
		if prompt {
			fmt.Fprintf(ex.out, "%s> ", ex.pwd)
		}

		read, err := buf.ReadString('\n')
		tokens := strings.Fields(read)
		if len(tokens) > 0 {
			ex.exec(tokens)
		}
		if err != nil {
			if prompt {
				fmt.Fprint(ex.out, "\n")
			}
			return
		}
	}
}

func (ex *explorer) exec(tokens []string) {
	for _, cmd := range commands {
		if cmd.name != tokens[0] {
			continue
		}
		if len(tokens)-1 < cmd.nargs {
			fmt.Fprintf(ex.out, "Usage: %s %s\n", cmd.name, cmd.args)
			return
		}
		if err := cmd.run(ex, tokens[1:]); err != nil {
			fmt.Fprintf(ex.out, "%s: %s\n", cmd.name, err)
		}
		return
	}
	fmt.Fprintf(ex.out, "%s is not a valid command\n", tokens[0])
}

func (ex *explorer) help(args []string) error {
	fmt.Fprintln(ex.out, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(ex.out, "\t%s %s\t%s\n", cmd.name, cmd.args, cmd.help)
	}
	return nil
}

func (ex *explorer) ls(args []string) error {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}

	fi, dp, err := ex.fsys.Open(ex.cwd, target)
	if err != nil {
		return err
	}
	defer ex.fsys.CloseFile(fi)
	if dp == nil {
		return common.ErrNotDir
	}
	defer ex.fsys.CloseDir(dp)

	for {
		name, ok := ex.fsys.Readdir(dp)
		if !ok {
			return nil
		}
		info, err := ex.fsys.Stat(ex.cwd, path.Join(target, name))
		if err != nil {
			return err
		}
		kind := "-"
		if info.IsDir {
			kind = "d"
		}
		fmt.Fprintf(ex.out, "%s %6d %8d %s\n", kind, info.Inumber, info.Length, name)
	}
}

func (ex *explorer) cd(args []string) error {
	dp, err := ex.fsys.Chdir(ex.cwd, args[0])
	if err != nil {
		return err
	}
	ex.cwd = dp
	if strings.HasPrefix(args[0], "/") {
		ex.pwd = path.Clean(args[0])
	} else {
		ex.pwd = path.Join(ex.pwd, args[0])
	}
	return nil
}

func (ex *explorer) printPwd(args []string) error {
	fmt.Fprintln(ex.out, ex.pwd)
	return nil
}

func (ex *explorer) mkdir(args []string) error {
	return ex.fsys.Mkdir(ex.cwd, args[0])
}

func (ex *explorer) cat(args []string) error {
	fi, dp, err := ex.fsys.Open(ex.cwd, args[0])
	if err != nil {
		return err
	}
	defer ex.fsys.CloseFile(fi)
	if dp != nil {
		ex.fsys.CloseDir(dp)
		return common.ErrIsDir
	}

	block := make([]byte, common.SectorSize)
	for {
		n, err := ex.fsys.Read(fi, block)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		ex.out.Write(block[:n])
	}
}

func (ex *explorer) put(args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := ex.fsys.Create(ex.cwd, args[1], 0); err != nil {
		return err
	}
	fi, _, err := ex.fsys.Open(ex.cwd, args[1])
	if err != nil {
		return err
	}
	defer ex.fsys.CloseFile(fi)

	n, err := ex.fsys.Write(fi, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(ex.out, "wrote %s to %s\n", humanize.Bytes(uint64(n)), args[1])
	return nil
}

func (ex *explorer) rm(args []string) error {
	return ex.fsys.Remove(ex.cwd, args[0])
}

func (ex *explorer) stat(args []string) error {
	info, err := ex.fsys.Stat(ex.cwd, args[0])
	if err != nil {
		return err
	}
	kind := "regular file"
	if info.IsDir {
		kind = "directory"
	}
	fmt.Fprintf(ex.out, "  Inode: %d\n", info.Inumber)
	fmt.Fprintf(ex.out, "   Type: %s\n", kind)
	fmt.Fprintf(ex.out, "   Size: %d (%s)\n", info.Length, humanize.Bytes(uint64(info.Length)))
	fmt.Fprintf(ex.out, "Sectors: %d\n", (info.Length+common.SectorSize-1)/common.SectorSize)
	if info.WriteDenied {
		fmt.Fprintln(ex.out, "  Notes: running executable, writes denied")
	}
	return nil
}

func (ex *explorer) df(args []string) error {
	total := ex.fsys.Device().Sectors()
	free := ex.fsys.Free()
	fmt.Fprintf(ex.out, "%d of %d sectors free (%s of %s)\n",
		free, total,
		humanize.Bytes(uint64(free)*common.SectorSize),
		humanize.Bytes(uint64(total)*common.SectorSize),
	)
	return nil
}

func (ex *explorer) dump(args []string) error {
	sector, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return err
	}
	data := make([]byte, common.SectorSize)
	if err := ex.fsys.Device().ReadSector(uint32(sector), data); err != nil {
		return err
	}
	return debug.DumpSector(ex.out, uint32(sector), data)
}
