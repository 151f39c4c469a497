//go:build linux

package vma

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Region is one contiguous virtual-address range from /proc/<pid>/maps.
type Region struct {
	Start    uint64
	End      uint64
	Perms    string
	Offset   uint64
	Device   string
	Inode    uint64
	Pathname string // empty for anonymous mappings
}

// Writable reports whether the region's write permission bit is set.
func (r Region) Writable() bool {
	return len(r.Perms) > 1 && r.Perms[1] == 'w'
}

// Pages returns the number of pages covered by the region.
func (r Region) Pages(pageSize int) uint64 {
	return (r.End - r.Start) / uint64(pageSize)
}

// Type classifies the region from its pathname and permissions:
//
//	[heap]                      heap
//	[stack]                     stack
//	[vdso] [vvar] [vsyscall]    vdso
//	(empty)                     anonymous
//	/abs/path with x perm       code
//	/abs/path without x perm    data
//	anything else               unknown
func (r Region) Type() string {
	switch r.Pathname {
	case "[heap]":
		return "heap"
	case "[stack]":
		return "stack"
	case "[vdso]", "[vvar]", "[vsyscall]":
		return "vdso"
	case "":
		return "anonymous"
	default:
		if strings.HasPrefix(r.Pathname, "/") {
			if strings.Contains(r.Perms, "x") {
				return "code"
			}
			return "data"
		}
		return "unknown"
	}
}

// Parse reads maps-format lines and returns the regions in file order.
// Malformed lines are skipped, the map can change mid-read and partial
// garbage is not worth failing over.
//
// Example lines:
//
//	55d74cf13000-55d74cf14000 rw-p 00003000 fe:03 1194719   /usr/bin/python3.8
//	55d74e76d000-55d74e968000 rw-p 00000000 00:00 0         [heap]
//	7f3bcfe69000-7f3c4fe6a000 rw-p 00000000 00:00 0
func Parse(r io.Reader) []Region {
	var regions []Region
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		dash := strings.IndexByte(fields[0], '-')
		if dash <= 0 {
			continue
		}
		start, err := strconv.ParseUint(fields[0][:dash], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(fields[0][dash+1:], 16, 64)
		if err != nil || end < start {
			continue
		}
		offset, _ := strconv.ParseUint(fields[2], 16, 64)
		inode, _ := strconv.ParseUint(fields[4], 10, 64)
		pathname := ""
		if len(fields) > 5 {
			pathname = fields[5]
		}
		regions = append(regions, Region{
			Start:    start,
			End:      end,
			Perms:    fields[1],
			Offset:   offset,
			Device:   fields[3],
			Inode:    inode,
			Pathname: pathname,
		})
	}
	return regions
}

// ParseMaps reads and parses /proc/<pid>/maps. An error here normally means
// the process exited between liveness check and read; callers drop the
// process for this tick rather than abort.
func ParseMaps(pid int) ([]Region, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("vma: open maps for pid %d: %w", pid, err)
	}
	defer f.Close()
	return Parse(f), nil
}
