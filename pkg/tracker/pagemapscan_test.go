//go:build linux

package tracker

import (
	"os"
	"testing"

	"github.com/ddps-lab/criu-test-workload/pkg/system/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePagemapScan(t *testing.T) *Process {
	t.Helper()
	p, err := OpenProcess(os.Getpid())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	if !probePagemapScan(p.pagemap.Fd(), proc.PageSize()) {
		t.Skip("PAGEMAP_SCAN ioctl not supported on this kernel")
	}
	return p
}

func TestSelectReader_MatchesProbe(t *testing.T) {
	p, err := OpenProcess(os.Getpid())
	require.NoError(t, err)
	defer p.Close()

	r := selectReader(p, proc.PageSize())
	if probePagemapScan(p.pagemap.Fd(), proc.PageSize()) {
		assert.Equal(t, BackendPagemapScan, r.name())
	} else {
		assert.Equal(t, BackendSoftDirty, r.name())
	}
}

func TestPagemapScanReader_DetectsTouchedPages(t *testing.T) {
	p := requirePagemapScan(t)

	buf, first, last := prepareDirtyPair(t, p, 64)

	r := newPagemapScanReader(proc.PageSize())
	pages, err := r.readDirty(p, regionsCovering(t, buf))
	require.NoError(t, err)

	addrs := dirtyWithin(pages, buf)
	if len(addrs) == 0 {
		t.Skip("no soft-dirty bits observed; kernel likely lacks CONFIG_MEM_SOFT_DIRTY")
	}
	assert.Contains(t, addrs, first)
	assert.Contains(t, addrs, last)
	assert.Len(t, addrs, 2)
}

// Both backends must observe the same dirty set for the same region.
func TestPagemapScanReader_AgreesWithSoftDirty(t *testing.T) {
	p := requirePagemapScan(t)

	buf, _, _ := prepareDirtyPair(t, p, 32)
	regions := regionsCovering(t, buf)

	scanPages, err := newPagemapScanReader(proc.PageSize()).readDirty(p, regions)
	require.NoError(t, err)
	walkPages, err := newSoftDirtyReader(proc.PageSize()).readDirty(p, regions)
	require.NoError(t, err)

	assert.ElementsMatch(t, dirtyWithin(walkPages, buf), dirtyWithin(scanPages, buf))
}
