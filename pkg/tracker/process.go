//go:build linux

package tracker

import (
	"fmt"
	"io"
	"os"

	"github.com/ddps-lab/criu-test-workload/pkg/system/proc"
)

// Process holds the open kernel interfaces of one tracked process: the
// pagemap read handle and the clear_refs dirty-state reset handle.
type Process struct {
	pid       int
	pagemap   *os.File
	clearRefs *os.File
}

// OpenProcess opens both handles for pid. Failure is expected for
// short-lived or already-exited processes; callers mark the PID dead and
// move on rather than surfacing the error.
func OpenProcess(pid int) (*Process, error) {
	pagemap, err := os.Open(fmt.Sprintf("/proc/%d/pagemap", pid))
	if err != nil {
		return nil, fmt.Errorf("tracker: open pagemap for pid %d: %w", pid, err)
	}
	clearRefs, err := os.OpenFile(fmt.Sprintf("/proc/%d/clear_refs", pid), os.O_WRONLY, 0)
	if err != nil {
		_ = pagemap.Close()
		return nil, fmt.Errorf("tracker: open clear_refs for pid %d: %w", pid, err)
	}
	return &Process{pid: pid, pagemap: pagemap, clearRefs: clearRefs}, nil
}

// Pid returns the process ID.
func (p *Process) Pid() int { return p.pid }

// Alive reports whether the process still exists in /proc.
func (p *Process) Alive() bool { return proc.Exists(p.pid) }

// ClearSoftDirty resets the process's soft-dirty bits by writing the reset
// code to clear_refs. Must be called strictly after the process's pages have
// been read for the current tick and before the next tick's read.
func (p *Process) ClearSoftDirty() error {
	if _, err := p.clearRefs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("tracker: seek clear_refs for pid %d: %w", p.pid, err)
	}
	if _, err := p.clearRefs.WriteString("4"); err != nil {
		return fmt.Errorf("tracker: clear soft-dirty for pid %d: %w", p.pid, err)
	}
	return nil
}

// Close releases both handles.
func (p *Process) Close() {
	_ = p.pagemap.Close()
	_ = p.clearRefs.Close()
}
