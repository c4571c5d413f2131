package kernel

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jnwhiteh/sectorfs/testutils"
	"github.com/jnwhiteh/sectorfs/vm"
)

func TestExecWait(test *testing.T) {
	started := make(chan *Process, 1)
	release := make(chan struct{})
	k := newTestKernel(test, Options{Run: func(k *Kernel, p *Process) {
		started <- p
		<-release
		k.Exit(p, 42)
	}})

	u := spawnUser(test, k, "shell")
	require.Equal(test, int32(1), u.call(SYS_CREATE, u.str("/prog"), 100))

	pid := u.call(SYS_EXEC, u.str("prog arg1 arg2"))
	require.Greater(test, pid, int32(0))
	child := <-started
	assert.Equal(test, int(pid), child.PID())
	assert.Equal(test, "prog", child.Name())

	// The executable can not be modified while it runs
	fd := u.open("/prog")
	assert.Equal(test, int32(0), u.call(SYS_WRITE, fd, u.str("xx"), 2))

	close(release)
	assert.Equal(test, int32(42), u.call(SYS_WAIT, uint32(pid)))
	assert.Equal(test, int32(-1), u.call(SYS_WAIT, uint32(pid)), "second wait")
	assert.Equal(test, int32(2), u.call(SYS_WRITE, fd, u.str("xx"), 2))
	u.call(SYS_CLOSE, fd)

	assert.Equal(test, int32(-1), u.call(SYS_WAIT, 12345))
	assert.Equal(test, int32(-1), u.call(SYS_EXEC, u.str("missing")))
	assert.Equal(test, int32(-1), u.call(SYS_EXEC, u.str("/")))
	assert.Equal(test, int32(-1), u.call(SYS_EXEC, u.str("   ")))
}

func TestWaitOnlyForChildren(test *testing.T) {
	done := make(chan struct{})
	k := newTestKernel(test, Options{Run: func(k *Kernel, p *Process) {
		<-done
		k.Exit(p, 7)
	}})

	parent := spawnUser(test, k, "parent")
	stranger := spawnUser(test, k, "stranger")
	require.Equal(test, int32(1), parent.call(SYS_CREATE, parent.str("/prog"), 0))

	pid := parent.call(SYS_EXEC, parent.str("/prog"))
	assert.Equal(test, int32(-1), stranger.call(SYS_WAIT, uint32(pid)))
	close(done)
	assert.Equal(test, int32(7), parent.call(SYS_WAIT, uint32(pid)))
}

func TestRunWithoutExit(test *testing.T) {
	k := newTestKernel(test, Options{Run: func(k *Kernel, p *Process) {}})
	u := spawnUser(test, k, "parent")
	require.Equal(test, int32(1), u.call(SYS_CREATE, u.str("/quits"), 0))

	pid := u.call(SYS_EXEC, u.str("/quits"))
	assert.Equal(test, int32(-1), u.call(SYS_WAIT, uint32(pid)))
}

func TestChildInheritsWorkingDirectory(test *testing.T) {
	created := make(chan error, 1)
	k := newTestKernel(test, Options{Run: func(k *Kernel, p *Process) {
		created <- k.FileSystem().Create(p.cwd, "made-by-child", 0)
		k.Exit(p, 0)
	}})

	u := spawnUser(test, k, "parent")
	require.Equal(test, int32(1), u.call(SYS_MKDIR, u.str("/work")))
	require.Equal(test, int32(1), u.call(SYS_CHDIR, u.str("/work")))
	require.Equal(test, int32(1), u.call(SYS_CREATE, u.str("tool"), 0))

	pid := u.call(SYS_EXEC, u.str("tool"))
	require.NoError(test, <-created)
	assert.Equal(test, int32(0), u.call(SYS_WAIT, uint32(pid)))

	_, err := k.FileSystem().Stat(nil, "/work/made-by-child")
	assert.NoError(test, err)
}

// rawCall makes a system call without touching the testing.T, so it can be
// used from other goroutines.
func rawCall(k *Kernel, p *Process, num Number, args ...uint32) (int32, error) {
	esp := vm.PhysBase - 64
	as := p.AddressSpace()
	if err := as.WriteWord(esp, uint32(num)); err != nil {
		return 0, err
	}
	for i, arg := range args {
		if err := as.WriteWord(esp+4+vm.Addr(4*i), arg); err != nil {
			return 0, err
		}
	}
	f := &Frame{ESP: esp}
	if err := k.Handle(p, f); err != nil {
		return 0, fmt.Errorf("%v: %w", num, err)
	}
	return int32(f.EAX), nil
}

func TestConcurrentProcesses(test *testing.T) {
	const procs = 8
	const size = 20 * 512

	k := newTestKernel(test, Options{})
	free := k.FileSystem().Free()

	users := make([]*user, procs)
	paths := make([]uint32, procs)
	srcs := make([]uint32, procs)
	dsts := make([]uint32, procs)
	data := make([][]byte, procs)
	for i := range users {
		users[i] = spawnUser(test, k, fmt.Sprintf("p%d", i))
		data[i] = testutils.Pattern(int64(i), size)
		paths[i] = users[i].str(fmt.Sprintf("/file%d", i))
		srcs[i] = users[i].data(data[i])
		dsts[i] = uint32(users[i].alloc(size))
	}

	var g errgroup.Group
	for i := range users {
		p := users[i].p
		g.Go(func() error {
			if ok, err := rawCall(k, p, SYS_CREATE, paths[i], 0); err != nil || ok != 1 {
				return fmt.Errorf("create %d: %d %v", i, ok, err)
			}
			fd, err := rawCall(k, p, SYS_OPEN, paths[i])
			if err != nil || fd < 2 {
				return fmt.Errorf("open %d: %d %v", i, fd, err)
			}
			// Write in small pieces so the processes interleave
			for off := 0; off < size; off += 512 {
				if _, err := rawCall(k, p, SYS_WRITE, uint32(fd), srcs[i]+uint32(off), 512); err != nil {
					return err
				}
			}
			if _, err := rawCall(k, p, SYS_SEEK, uint32(fd), 0); err != nil {
				return err
			}
			n, err := rawCall(k, p, SYS_READ, uint32(fd), dsts[i], size)
			if err != nil || n != size {
				return fmt.Errorf("read %d: %d %v", i, n, err)
			}
			_, err = rawCall(k, p, SYS_CLOSE, uint32(fd))
			return err
		})
	}
	require.NoError(test, g.Wait())

	for i, u := range users {
		got := u.read(dsts[i], size)
		assert.True(test, bytes.Equal(data[i], got), "process %d read back the wrong data", i)
		assert.Equal(test, int32(1), u.call(SYS_REMOVE, u.str(fmt.Sprintf("/file%d", i))))
	}
	assert.Equal(test, free, k.FileSystem().Free())
}

func TestConcurrentExit(test *testing.T) {
	out := new(syncBuffer)
	k := newTestKernel(test, Options{Stdout: out})
	u := spawnUser(test, k, "victim")
	require.Equal(test, int32(1), u.call(SYS_CREATE, u.str("/f"), 100))
	u.open("/f")
	u.open("/")

	// Lay out an exit call in advance so the process can make it from
	// another goroutine
	esp := vm.PhysBase - 64
	require.NoError(test, u.p.AddressSpace().WriteWord(esp, uint32(SYS_EXIT)))
	require.NoError(test, u.p.AddressSpace().WriteWord(esp+4, 7))

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			k.Exit(u.p, 7)
			return nil
		})
	}
	g.Go(func() error {
		err := k.Handle(u.p, &Frame{ESP: esp})
		if !errors.Is(err, ErrTerminated) {
			return fmt.Errorf("exit call returned %v", err)
		}
		return nil
	})
	require.NoError(test, g.Wait())

	assert.Equal(test, 7, u.p.ExitStatus())
	assert.Equal(test, "victim: exit(7)\n", out.String())
	assert.Equal(test, 0, u.p.Files().Len())
}
