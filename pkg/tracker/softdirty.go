//go:build linux

package tracker

import (
	"encoding/binary"

	"github.com/ddps-lab/criu-test-workload/pkg/vma"
)

const (
	pagemapEntrySize = 8

	// /proc/<pid>/pagemap entry bits
	pmSoftDirty = uint64(1) << 55
	pmSwapped   = uint64(1) << 62
	pmPresent   = uint64(1) << 63
)

// softDirtyReader walks /proc/<pid>/pagemap one writable region at a time
// and tests the soft-dirty bit of every page-table entry.
type softDirtyReader struct {
	pageSize int
	buf      []byte // pagemap entry buffer, reused across regions and ticks
}

func newSoftDirtyReader(pageSize int) *softDirtyReader {
	return &softDirtyReader{pageSize: pageSize}
}

func (r *softDirtyReader) name() string { return BackendSoftDirty }

func (r *softDirtyReader) readDirty(p *Process, regions []vma.Region) ([]Page, error) {
	var maxPages, totalPages uint64
	for _, reg := range regions {
		if !reg.Writable() {
			continue
		}
		n := reg.Pages(r.pageSize)
		totalPages += n
		if n > maxPages {
			maxPages = n
		}
	}
	if need := int(maxPages) * pagemapEntrySize; cap(r.buf) < need {
		r.buf = make([]byte, need)
	}

	pages := make([]Page, 0, presizeDirty(totalPages))
	for _, reg := range regions {
		if !reg.Writable() {
			continue
		}
		numPages := reg.Pages(r.pageSize)
		if numPages == 0 {
			continue
		}

		startPage := reg.Start / uint64(r.pageSize)
		offset := int64(startPage * pagemapEntrySize)
		buf := r.buf[:numPages*pagemapEntrySize]

		// A short read means fewer pages observed, not an error; a failed
		// read skips the region for this tick only.
		n, _ := p.pagemap.ReadAt(buf, offset)
		if n < pagemapEntrySize {
			continue
		}

		actualPages := n / pagemapEntrySize
		vmaType := reg.Type()
		for i := 0; i < actualPages; i++ {
			entry := binary.LittleEndian.Uint64(buf[i*pagemapEntrySize : (i+1)*pagemapEntrySize])
			if entry&pmSoftDirty == 0 {
				continue
			}
			pages = append(pages, Page{
				Addr:     reg.Start + uint64(i)*uint64(r.pageSize),
				VMAType:  vmaType,
				Perms:    reg.Perms,
				Pathname: reg.Pathname,
			})
		}
	}
	return pages, nil
}
