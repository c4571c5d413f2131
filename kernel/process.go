package kernel

import (
	"sync"

	"github.com/jnwhiteh/sectorfs/dir"
	"github.com/jnwhiteh/sectorfs/file"
	"github.com/jnwhiteh/sectorfs/vm"
)

// A Process is a user program as seen by the kernel: an address space, a
// working directory and a table of open files. Only the goroutine running
// the program should make system calls on its behalf, but any goroutine may
// Exit it.
type Process struct {
	m sync.Mutex // held for the duration of a system call or an exit


	pid    int
	name   string
	parent *Process
	as     *vm.AddressSpace
	cwd    *dir.Dir
	files  *FDTable
	exe    *file.File // the running executable, write denied; nil for Spawn

	status int
	done   chan struct{}
}

func (p *Process) PID() int {
	return p.pid
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) AddressSpace() *vm.AddressSpace {
	return p.as
}

func (p *Process) Files() *FDTable {
	return p.files
}

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitStatus is only meaningful once Done is closed.
func (p *Process) ExitStatus() int {
	<-p.done
	return p.status
}

type child struct {
	proc   *Process
	waited bool
}

// ProcessTable tracks live processes and the parent/child relation used by
// wait.
type ProcessTable struct {
	procs    map[int]*Process
	children map[int]map[int]*child // parent pid -> child pid -> child
	nextPid  int
	m        sync.Mutex
}

func NewProcessTable() *ProcessTable {
	return &ProcessTable{
		procs:    make(map[int]*Process),
		children: make(map[int]map[int]*child),
		nextPid:  1,
	}
}

func (pt *ProcessTable) add(p *Process) {
	pt.m.Lock()
	defer pt.m.Unlock()

	p.pid = pt.nextPid
	pt.nextPid++
	pt.procs[p.pid] = p
	if p.parent != nil {
		kids := pt.children[p.parent.pid]
		if kids == nil {
			kids = make(map[int]*child)
			pt.children[p.parent.pid] = kids
		}
		kids[p.pid] = &child{proc: p}
	}
}

// Lookup returns the live process with the given pid.
func (pt *ProcessTable) Lookup(pid int) (*Process, bool) {
	pt.m.Lock()
	defer pt.m.Unlock()
	p, ok := pt.procs[pid]
	return p, ok
}

func (pt *ProcessTable) Len() int {
	pt.m.Lock()
	defer pt.m.Unlock()
	return len(pt.procs)
}

func (pt *ProcessTable) remove(p *Process) {
	pt.m.Lock()
	defer pt.m.Unlock()
	delete(pt.procs, p.pid)
	delete(pt.children, p.pid) // orphans can no longer be waited for
}

// wait blocks until the child pid of parent exits and returns its status.
// A pid that is not a child of parent, or has already been waited for,
// returns -1 at once.
func (pt *ProcessTable) wait(parent *Process, pid int) int {
	pt.m.Lock()
	c, ok := pt.children[parent.pid][pid]
	if !ok || c.waited {
		pt.m.Unlock()
		return -1
	}
	c.waited = true
	pt.m.Unlock()

	return c.proc.ExitStatus()
}
