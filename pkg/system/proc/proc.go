//go:build linux

package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PageSize returns the system memory page size in bytes.
// It first checks an env override (PAGE_SIZE) to ease testing,
// then falls back to os.Getpagesize().
func PageSize() int {
	if ps := os.Getenv("PAGE_SIZE"); ps != "" {
		if v, _ := strconv.Atoi(ps); v > 0 {
			return v
		}
	}
	return os.Getpagesize()
}

// Exists reports whether a given PID currently exists in /proc.
// It simply checks if /proc/<pid> is a valid directory.
func Exists(pid int) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil
}

// ReadComm returns the short command name of a process from
// /proc/<pid>/comm (trailing newline stripped).
func ReadComm(pid int) (string, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return "", ErrNoComm
	}
	return name, nil
}

// ReadProcChildren returns the direct child PIDs of a process by reading
// /proc/<pid>/task/*/children files. Each children file lists space-separated
// PIDs for that thread’s children.
//
// Notes:
//   - Kernel 3.5+ exposes this interface.
//   - We deduplicate across threads by using a set.
//   - If no children are found, returns ErrNoChildren.
func ReadProcChildren(pid int) ([]int, error) {
	glob := fmt.Sprintf("/proc/%d/task/*/children", pid)
	paths, _ := filepath.Glob(glob)
	set := map[int]struct{}{}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		for _, s := range strings.Fields(string(b)) {
			if id, err := strconv.Atoi(s); err == nil {
				set[id] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, ErrNoChildren
	}
	return out, nil
}
