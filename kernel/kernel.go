package kernel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/fs"
	"github.com/jnwhiteh/sectorfs/vm"
)

var (
	// ErrTerminated is returned by Handle once the calling process has
	// exited, either by request or because the kernel killed it.
	ErrTerminated = errors.New("process terminated")

	// ErrHalted is returned by Handle after a halt request.
	ErrHalted = errors.New("system halted")
)

// Frame is the part of the trap frame a system call uses: the user stack
// pointer on entry and the return value on exit.
type Frame struct {
	ESP vm.Addr
	EAX uint32
}

// Options configures a Kernel. Every field is optional.
type Options struct {
	Stdin  io.Reader // console input, read through descriptor 0
	Stdout io.Writer // console output, written through descriptor 1

	// Run is started on its own goroutine for every process created by
	// exec. It should make system calls through Kernel.Handle and return
	// once Handle reports ErrTerminated. If Run returns without exiting,
	// the process exits with status -1.
	Run func(k *Kernel, p *Process)

	// Halt is called on a halt request.
	Halt func()
}

// Kernel is the system call boundary in front of a mounted file system.
type Kernel struct {
	fs     *fs.FileSystem
	procs  *ProcessTable
	opts   Options
	halted atomic.Bool

	console sync.Mutex // serializes Stdin and Stdout between processes
}

func New(fsys *fs.FileSystem, opts Options) *Kernel {
	if opts.Stdin == nil {
		opts.Stdin = strings.NewReader("")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	return &Kernel{
		fs:    fsys,
		procs: NewProcessTable(),
		opts:  opts,
	}
}

func (k *Kernel) FileSystem() *fs.FileSystem {
	return k.fs
}

func (k *Kernel) Processes() *ProcessTable {
	return k.procs
}

func (k *Kernel) Halted() bool {
	return k.halted.Load()
}

func (k *Kernel) newProcess(name string, parent *Process) (*Process, error) {
	p := &Process{
		name:   name,
		parent: parent,
		as:     vm.NewAddressSpace(),
		files:  NewFDTable(),
		done:   make(chan struct{}),
	}

	var err error
	if parent != nil && parent.cwd != nil {
		p.cwd = k.fs.ReopenDir(parent.cwd)
	} else if p.cwd, err = k.fs.OpenRoot(); err != nil {
		return nil, err
	}
	k.procs.add(p)
	return p, nil
}

// Spawn creates a process with an empty address space, working in the root
// directory and with no parent. It is how the first program gets started.
func (k *Kernel) Spawn(name string) (*Process, error) {
	return k.newProcess(name, nil)
}

// Exec starts the program named by the first word of cmdline as a child of
// parent and returns its pid, or -1 if the program can not be opened. The
// executable can not be written while the child runs.
func (k *Kernel) Exec(parent *Process, cmdline string) int {
	words := strings.Fields(cmdline)
	if len(words) == 0 {
		return -1
	}

	exe, dp, err := k.fs.Open(parent.cwd, words[0])
	if err != nil {
		slog.Debug("exec failed", "cmdline", cmdline, "err", err)
		return -1
	}
	if dp != nil {
		k.fs.CloseDir(dp)
		k.fs.CloseFile(exe)
		return -1
	}
	k.fs.DenyWrite(exe)

	p, err := k.newProcess(words[0], parent)
	if err != nil {
		k.fs.CloseFile(exe)
		return -1
	}
	p.exe = exe

	if k.opts.Run != nil {
		go func() {
			k.opts.Run(k, p)
			k.Exit(p, -1)
		}()
	}
	return p.pid
}

// Wait waits for the child pid of p to exit and returns its exit status.
func (k *Kernel) Wait(p *Process, pid int) int {
	return k.procs.wait(p, pid)
}

// Exit terminates p with the given status, closing everything it has open.
// It does nothing if p has already exited, and waits for a system call in
// progress on p to finish first.
func (k *Kernel) Exit(p *Process, status int) {
	p.m.Lock()
	defer p.m.Unlock()
	if !p.Exited() {
		k.exit(p, status)
	}
}

// exit must be called with p.m held.
func (k *Kernel) exit(p *Process, status int) {
	k.console.Lock()
	fmt.Fprintf(k.opts.Stdout, "%s: exit(%d)\n", p.name, status)
	k.console.Unlock()
	slog.Info("process exit", "pid", p.pid, "name", p.name, "status", status)

	for _, d := range p.files.All() {
		k.closeDescriptor(p, d)
	}
	if p.cwd != nil {
		k.fs.CloseDir(p.cwd)
		p.cwd = nil
	}
	if p.exe != nil {
		k.fs.CloseFile(p.exe) // also allows writes again
		p.exe = nil
	}

	p.status = status
	k.procs.remove(p)
	close(p.done)
}

func (k *Kernel) closeDescriptor(p *Process, d *Descriptor) {
	k.fs.CloseFile(d.File)
	if d.IsDir {
		k.fs.CloseDir(d.Dir)
	}
	d.Opened = false
	p.files.Remove(d.FD)
}

// kill terminates p for misbehaving at the system call boundary.
func (k *Kernel) kill(p *Process, reason error) error {
	slog.Debug("killing process", "pid", p.pid, "name", p.name, "reason", reason)
	k.exit(p, -1)
	return ErrTerminated
}

// Handle performs the system call described by the user stack at f.ESP on
// behalf of p and stores the result in f.EAX. It returns ErrTerminated if
// the call ended the process, in which case the caller must stop running
// it.
func (k *Kernel) Handle(p *Process, f *Frame) error {
	p.m.Lock()
	defer p.m.Unlock()

	if p.Exited() {
		return ErrTerminated
	}
	if k.Halted() {
		return ErrHalted
	}

	req, err := Decode(p.as, f.ESP)
	if err != nil {
		return k.kill(p, err)
	}
	return k.dispatch(p, f, req)
}

func boolResult(ok bool) uint32 {
	if ok {
		return 1
	}
	return 0
}

func intResult(n int) uint32 {
	return uint32(int32(n))
}

// descriptor finds an open descriptor other than the console.
func (p *Process) descriptor(fd int32) (*Descriptor, bool) {
	d, ok := p.files.Get(int(fd))
	if !ok || !d.Opened {
		return nil, false
	}
	return d, true
}

func (k *Kernel) dispatch(p *Process, f *Frame, req Request) error {
	switch req := req.(type) {
	case HaltRequest:
		k.halted.Store(true)
		if k.opts.Halt != nil {
			k.opts.Halt()
		}
		return ErrHalted

	case ExitRequest:
		k.exit(p, int(req.Status))
		return ErrTerminated

	case ExecRequest:
		f.EAX = intResult(k.Exec(p, req.CmdLine))

	case WaitRequest:
		// The child may take arbitrarily long, and p must stay killable
		// meanwhile
		p.m.Unlock()
		status := k.Wait(p, int(req.PID))
		p.m.Lock()
		if p.Exited() {
			return ErrTerminated
		}
		f.EAX = intResult(status)

	case CreateRequest:
		f.EAX = boolResult(k.fs.Create(p.cwd, req.Path, int64(req.Size)) == nil)

	case RemoveRequest:
		f.EAX = boolResult(k.fs.Remove(p.cwd, req.Path) == nil)

	case MkdirRequest:
		f.EAX = boolResult(k.fs.Mkdir(p.cwd, req.Path) == nil)

	case ChdirRequest:
		cwd, err := k.fs.Chdir(p.cwd, req.Path)
		if err == nil {
			p.cwd = cwd
		}
		f.EAX = boolResult(err == nil)

	case OpenRequest:
		fi, dp, err := k.fs.Open(p.cwd, req.Path)
		if err != nil {
			f.EAX = intResult(-1)
			break
		}
		f.EAX = intResult(p.files.Add(fi, dp))

	case FilesizeRequest:
		d, ok := p.descriptor(req.FD)
		if !ok {
			return k.kill(p, common.ErrBadFD)
		}
		length, _ := k.fs.Length(d.File)
		f.EAX = intResult(int(length))

	case ReadRequest:
		return k.read(p, f, req)

	case WriteRequest:
		return k.write(p, f, req)

	case SeekRequest:
		d, ok := p.descriptor(req.FD)
		if !ok {
			return k.kill(p, common.ErrBadFD)
		}
		k.fs.Seek(d.File, int64(req.Pos))

	case TellRequest:
		d, ok := p.descriptor(req.FD)
		if !ok {
			return k.kill(p, common.ErrBadFD)
		}
		pos, _ := k.fs.Tell(d.File)
		f.EAX = uint32(pos)

	case CloseRequest:
		d, ok := p.descriptor(req.FD)
		if !ok {
			return k.kill(p, common.ErrBadFD)
		}
		k.closeDescriptor(p, d)

	case ReaddirRequest:
		d, ok := p.descriptor(req.FD)
		if !ok || !d.IsDir {
			f.EAX = boolResult(false)
			break
		}
		name, ok := k.fs.Readdir(d.Dir)
		if !ok {
			f.EAX = boolResult(false)
			break
		}
		if err := p.as.CopyOut(req.Name, append([]byte(name), 0)); err != nil {
			return k.kill(p, err)
		}
		f.EAX = boolResult(true)

	case IsdirRequest:
		d, ok := p.descriptor(req.FD)
		f.EAX = boolResult(ok && d.IsDir)

	case InumberRequest:
		d, ok := p.descriptor(req.FD)
		if !ok {
			f.EAX = intResult(-1)
			break
		}
		f.EAX = k.fs.Inumber(d.File)

	default:
		return k.kill(p, fmt.Errorf("%v: %w", req.Number(), ErrBadSyscall))
	}
	return nil
}

// chunk returns how much of the remaining n bytes at addr fit before the
// next page boundary.
func chunk(addr vm.Addr, n int) int {
	return min(n, vm.PageSize-int(addr%vm.PageSize))
}

// read and write move user data a page at a time, so the kernel never holds
// more than one page of it whatever length the caller asks for.
func (k *Kernel) read(p *Process, f *Frame, req ReadRequest) error {
	var src func(buf []byte) int
	switch req.FD {
	case common.ConsoleIn:
		src = func(buf []byte) int {
			k.console.Lock()
			defer k.console.Unlock()
			n, _ := io.ReadFull(k.opts.Stdin, buf)
			return n
		}
	default:
		d, ok := p.descriptor(req.FD)
		if !ok {
			return k.kill(p, common.ErrBadFD)
		}
		if d.IsDir {
			f.EAX = intResult(-1)
			return nil
		}
		src = func(buf []byte) int {
			n, _ := k.fs.Read(d.File, buf)
			return n
		}
	}

	buf := make([]byte, vm.PageSize)
	total, want := 0, int(req.Len)
	for total < want {
		addr := req.Buf + vm.Addr(total)
		size := chunk(addr, want-total)
		n := src(buf[:size])
		if err := p.as.CopyOut(addr, buf[:n]); err != nil {
			return k.kill(p, err)
		}
		total += n
		if n < size {
			break
		}
	}
	f.EAX = intResult(total)
	return nil
}

func (k *Kernel) write(p *Process, f *Frame, req WriteRequest) error {
	var d *Descriptor
	if req.FD != common.ConsoleOut {
		var ok bool
		if d, ok = p.descriptor(req.FD); !ok {
			return k.kill(p, common.ErrBadFD)
		}
		if d.IsDir {
			f.EAX = intResult(-1)
			return nil
		}
	}

	// Nothing is written unless the whole buffer is readable
	want := int(req.Len)
	if err := p.as.CheckRange(req.Buf, want); err != nil {
		return k.kill(p, err)
	}

	if d == nil {
		// One console write is never interleaved with another
		k.console.Lock()
		defer k.console.Unlock()
	}

	buf := make([]byte, vm.PageSize)
	total := 0
	for total < want {
		addr := req.Buf + vm.Addr(total)
		size := chunk(addr, want-total)
		if err := p.as.ReadAt(addr, buf[:size]); err != nil {
			// CheckRange saw every page mapped and only p changes its
			// address space
			panic(err)
		}
		var n int
		if d == nil {
			n, _ = k.opts.Stdout.Write(buf[:size])
		} else {
			n, _ = k.fs.Write(d.File, buf[:size])
		}
		total += n
		if n < size {
			break
		}
	}
	f.EAX = intResult(total)
	return nil
}
