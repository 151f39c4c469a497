//go:build linux

package tracker

import (
	"errors"
	"unsafe"

	"github.com/ddps-lab/criu-test-workload/pkg/vma"
	"golang.org/x/sys/unix"
)

// PAGEMAP_SCAN ioctl (Linux 6.7+): _IOWR('f', 16, struct pm_scan_arg).
const pagemapScanIoctl = 0xc0606610

// Page categories understood by PAGEMAP_SCAN.
const (
	pageIsWPAllowed = uint64(1) << 0
	pageIsWritten   = uint64(1) << 1
	pageIsFile      = uint64(1) << 2
	pageIsPresent   = uint64(1) << 3
	pageIsSwapped   = uint64(1) << 4
	pageIsPfnZero   = uint64(1) << 5
	pageIsHuge      = uint64(1) << 6
	pageIsSoftDirty = uint64(1) << 7
)

// pmScanArg mirrors struct pm_scan_arg from linux/fs.h.
type pmScanArg struct {
	size             uint64
	flags            uint64
	start            uint64
	end              uint64
	walkEnd          uint64
	vec              uint64
	vecLen           uint64
	maxPages         uint64
	categoryInverted uint64
	categoryMask     uint64
	categoryAnyOf    uint64
	returnMask       uint64
}

// pageRegion mirrors struct page_region: one compacted address range with
// its category bitmask.
type pageRegion struct {
	start      uint64
	end        uint64
	categories uint64
}

func scanIoctl(fd uintptr, arg *pmScanArg) (int, error) {
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, pagemapScanIoctl, uintptr(unsafe.Pointer(arg)))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// probePagemapScan issues a no-op-scoped scan on fd and reports whether the
// kernel supports the ioctl. ENOTTY and EINVAL signal "not supported"; any
// other outcome (success included) means the call exists.
func probePagemapScan(fd uintptr, pageSize int) bool {
	arg := pmScanArg{
		size:          uint64(unsafe.Sizeof(pmScanArg{})),
		end:           uint64(pageSize),
		categoryAnyOf: pageIsPresent,
		returnMask:    pageIsSoftDirty,
	}
	_, err := scanIoctl(fd, &arg)
	if err == nil {
		return true
	}
	return !errors.Is(err, unix.ENOTTY) && !errors.Is(err, unix.EINVAL)
}

// pagemapScanReader issues one PAGEMAP_SCAN per writable region and expands
// the returned soft-dirty ranges page by page. It supersedes per-page
// pagemap reads where available: one call covers a whole region.
type pagemapScanReader struct {
	pageSize int
	vec      []pageRegion // kernel-filled result vector, reused across calls
}

func newPagemapScanReader(pageSize int) *pagemapScanReader {
	return &pagemapScanReader{
		pageSize: pageSize,
		vec:      make([]pageRegion, 8192),
	}
}

func (r *pagemapScanReader) name() string { return BackendPagemapScan }

func (r *pagemapScanReader) readDirty(p *Process, regions []vma.Region) ([]Page, error) {
	var totalPages uint64
	for _, reg := range regions {
		if reg.Writable() {
			totalPages += reg.Pages(r.pageSize)
		}
	}

	pages := make([]Page, 0, presizeDirty(totalPages))
	for _, reg := range regions {
		if !reg.Writable() {
			continue
		}

		// Request pages that are present or swapped, excluding zero-page
		// and file-backed pages so they are not miscounted as dirty.
		arg := pmScanArg{
			size:             uint64(unsafe.Sizeof(pmScanArg{})),
			start:            reg.Start,
			end:              reg.End,
			vec:              uint64(uintptr(unsafe.Pointer(&r.vec[0]))),
			vecLen:           uint64(len(r.vec)),
			categoryInverted: pageIsPfnZero | pageIsFile,
			categoryMask:     pageIsPfnZero | pageIsFile,
			categoryAnyOf:    pageIsPresent | pageIsSwapped,
			returnMask:       pageIsPresent | pageIsSwapped | pageIsSoftDirty,
		}
		n, err := scanIoctl(p.pagemap.Fd(), &arg)
		if err != nil {
			// skip this region for this tick only
			continue
		}
		if n > len(r.vec) {
			n = len(r.vec)
		}

		vmaType := reg.Type()
		for i := 0; i < n; i++ {
			pr := r.vec[i]
			if pr.categories&pageIsSoftDirty == 0 {
				continue
			}
			for addr := pr.start; addr < pr.end; addr += uint64(r.pageSize) {
				pages = append(pages, Page{
					Addr:     addr,
					VMAType:  vmaType,
					Perms:    reg.Perms,
					Pathname: reg.Pathname,
				})
			}
		}
	}
	return pages, nil
}
