package kernel

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/device"
	"github.com/jnwhiteh/sectorfs/fs"
	"github.com/jnwhiteh/sectorfs/fsck"
	"github.com/jnwhiteh/sectorfs/vm"
)

const (
	dataBase  vm.Addr = 0x08048000
	dataPages         = 64
	stackBase         = vm.PhysBase - vm.PageSize
)

// syncBuffer is a bytes.Buffer that may be written from several
// processes at once.
type syncBuffer struct {
	buf bytes.Buffer
	m   sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.m.Lock()
	defer b.m.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.m.Lock()
	defer b.m.Unlock()
	return b.buf.String()
}

// newTestKernel formats a fresh file system. Any process still running when
// the test ends is exited. The file system must then pass a consistency
// check and unmount cleanly, which proves nothing was leaked or left open.
func newTestKernel(test *testing.T, opts Options) *Kernel {
	fsys, err := fs.Format(device.NewRamDisk(2048), 32)
	require.NoError(test, err)
	k := New(fsys, opts)

	test.Cleanup(func() {
		k.procs.m.Lock()
		var live []*Process
		for _, p := range k.procs.procs {
			live = append(live, p)
		}
		k.procs.m.Unlock()
		for _, p := range live {
			k.Exit(p, 0)
		}
		report, err := fsck.Check(context.Background(), fsys, fsck.Options{FromDevice: true})
		require.NoError(test, err)
		assert.True(test, report.OK(), "%v", report.Problems)
		require.NoError(test, fsys.Unmount())
	})
	return k
}

// user drives a process the way a user program would: it lays out
// arguments on the stack and traps into the kernel.
type user struct {
	test *testing.T
	k    *Kernel
	p    *Process
	heap vm.Addr
}

func newUser(test *testing.T, k *Kernel, p *Process) *user {
	as := p.AddressSpace()
	require.NoError(test, as.Map(stackBase, vm.PageSize))
	require.NoError(test, as.Map(dataBase, dataPages*vm.PageSize))
	return &user{test: test, k: k, p: p, heap: dataBase}
}

func spawnUser(test *testing.T, k *Kernel, name string) *user {
	p, err := k.Spawn(name)
	require.NoError(test, err)
	return newUser(test, k, p)
}

// alloc reserves n bytes of user memory.
func (u *user) alloc(n int) vm.Addr {
	addr := u.heap
	u.heap += vm.Addr(n)
	require.Less(u.test, uint32(u.heap), uint32(dataBase)+dataPages*vm.PageSize)
	return addr
}

func (u *user) str(s string) uint32 {
	addr := u.alloc(len(s) + 1)
	require.NoError(u.test, u.p.AddressSpace().CopyOut(addr, append([]byte(s), 0)))
	return uint32(addr)
}

func (u *user) data(data []byte) uint32 {
	addr := u.alloc(len(data))
	require.NoError(u.test, u.p.AddressSpace().CopyOut(addr, data))
	return uint32(addr)
}

func (u *user) read(addr uint32, n int) []byte {
	buf, err := u.p.AddressSpace().CopyIn(vm.Addr(addr), n)
	require.NoError(u.test, err)
	return buf
}

// trap pushes the call onto the stack and enters the kernel.
func (u *user) trap(num Number, args ...uint32) (uint32, error) {
	esp := vm.PhysBase - 64
	as := u.p.AddressSpace()
	require.NoError(u.test, as.WriteWord(esp, uint32(num)))
	for i, arg := range args {
		require.NoError(u.test, as.WriteWord(esp+4+vm.Addr(4*i), arg))
	}
	f := &Frame{ESP: esp}
	err := u.k.Handle(u.p, f)
	return f.EAX, err
}

// call is trap for calls that must not end the process.
func (u *user) call(num Number, args ...uint32) int32 {
	eax, err := u.trap(num, args...)
	require.NoError(u.test, err, "%v", num)
	return int32(eax)
}

// killed asserts that the call terminates the process with status -1.
func (u *user) killed(num Number, args ...uint32) {
	_, err := u.trap(num, args...)
	require.ErrorIs(u.test, err, ErrTerminated, "%v", num)
	assert.Equal(u.test, -1, u.p.ExitStatus())
}

func (u *user) open(path string) uint32 {
	fd := u.call(SYS_OPEN, u.str(path))
	require.GreaterOrEqual(u.test, fd, int32(2), "open %s", path)
	return uint32(fd)
}
