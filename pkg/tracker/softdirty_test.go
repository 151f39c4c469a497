//go:build linux

package tracker

import (
	"os"
	"testing"
	"unsafe"

	"github.com/ddps-lab/criu-test-workload/pkg/system/proc"
	"github.com/ddps-lab/criu-test-workload/pkg/vma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// mmapPages maps an isolated anonymous writable region so the test is not
// polluted by runtime allocations in the Go heap arenas.
func mmapPages(t *testing.T, pages int) []byte {
	t.Helper()
	buf, err := unix.Mmap(-1, 0, pages*proc.PageSize(),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Munmap(buf) })
	return buf
}

func bufAddr(buf []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

// regionsCovering narrows parsed self maps to regions overlapping the buffer,
// keeping one reader call cheap and focused.
func regionsCovering(t *testing.T, buf []byte) []vma.Region {
	t.Helper()
	start := bufAddr(buf)
	end := start + uint64(len(buf))
	all, err := vma.ParseMaps(os.Getpid())
	require.NoError(t, err)
	var out []vma.Region
	for _, r := range all {
		if r.Start < end && start < r.End {
			out = append(out, r)
		}
	}
	require.NotEmpty(t, out, "mmapped buffer must appear in /proc/self/maps")
	return out
}

func dirtyWithin(pages []Page, buf []byte) []uint64 {
	start := bufAddr(buf)
	end := start + uint64(len(buf))
	var addrs []uint64
	for _, p := range pages {
		if p.Addr >= start && p.Addr < end {
			addrs = append(addrs, p.Addr)
		}
	}
	return addrs
}

// prepareDirtyPair faults in an isolated region, clears soft-dirty state and
// then touches exactly the first and last page. Skips when the kernel does
// not expose working soft-dirty tracking.
func prepareDirtyPair(t *testing.T, p *Process, pages int) (buf []byte, first, last uint64) {
	t.Helper()
	pageSize := proc.PageSize()
	buf = mmapPages(t, pages)
	for i := 0; i < pages; i++ {
		buf[i*pageSize] = 1
	}
	if err := p.ClearSoftDirty(); err != nil {
		t.Skipf("soft-dirty reset not supported: %v", err)
	}
	buf[0] = 2
	buf[(pages-1)*pageSize] = 2
	first = bufAddr(buf)
	last = first + uint64((pages-1)*pageSize)
	return buf, first, last
}

func TestSoftDirtyReader_DetectsTouchedPages(t *testing.T) {
	p, err := OpenProcess(os.Getpid())
	require.NoError(t, err)
	defer p.Close()

	buf, first, last := prepareDirtyPair(t, p, 64)

	r := newSoftDirtyReader(proc.PageSize())
	pages, err := r.readDirty(p, regionsCovering(t, buf))
	require.NoError(t, err)

	addrs := dirtyWithin(pages, buf)
	if len(addrs) == 0 {
		t.Skip("no soft-dirty bits observed; kernel likely lacks CONFIG_MEM_SOFT_DIRTY")
	}
	assert.Contains(t, addrs, first)
	assert.Contains(t, addrs, last)
	assert.Len(t, addrs, 2, "only the touched pages should be dirty")
}

func TestSoftDirtyReader_ResetIsIdempotent(t *testing.T) {
	p, err := OpenProcess(os.Getpid())
	require.NoError(t, err)
	defer p.Close()

	buf, _, _ := prepareDirtyPair(t, p, 16)

	// two resets with no intervening write leave the region clean
	require.NoError(t, p.ClearSoftDirty())
	require.NoError(t, p.ClearSoftDirty())

	r := newSoftDirtyReader(proc.PageSize())
	pages, err := r.readDirty(p, regionsCovering(t, buf))
	require.NoError(t, err)
	assert.Empty(t, dirtyWithin(pages, buf))
}

func TestSoftDirtyReader_SkipsNonWritable(t *testing.T) {
	p, err := OpenProcess(os.Getpid())
	require.NoError(t, err)
	defer p.Close()

	r := newSoftDirtyReader(proc.PageSize())
	pages, err := r.readDirty(p, []vma.Region{
		{Start: 0x400000, End: 0x500000, Perms: "r-xp", Pathname: "/bin/true"},
		{Start: 0x500000, End: 0x501000, Perms: "r--p", Pathname: "/bin/true"},
	})
	require.NoError(t, err)
	assert.Empty(t, pages, "read-only regions are never dirty sources")
}

func TestPresizeDirty(t *testing.T) {
	assert.Equal(t, 0, presizeDirty(0))
	assert.Equal(t, 100, presizeDirty(100))
	assert.Equal(t, 4096, presizeDirty(1<<20))
}
