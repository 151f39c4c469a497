//go:build linux

package tracker

import (
	"log/slog"

	"github.com/ddps-lab/criu-test-workload/pkg/vma"
)

// Backend names echoed in the report.
const (
	BackendSoftDirty   = "softdirty"
	BackendPagemapScan = "pagemap_scan"
)

// pageReader obtains the dirty pages within the writable regions of one
// process. Implementations only scan regions whose write bit is set, keep
// their own scratch buffers, and are not safe for concurrent use.
type pageReader interface {
	name() string
	readDirty(p *Process, regions []vma.Region) ([]Page, error)
}

// selectReader probes the batched PAGEMAP_SCAN interface once on the given
// process and picks the backend for the whole run. Kernels without the
// ioctl fall back to per-page pagemap reads; this is never a run failure.
func selectReader(p *Process, pageSize int) pageReader {
	if probePagemapScan(p.pagemap.Fd(), pageSize) {
		slog.Debug("page-state backend selected", "backend", BackendPagemapScan)
		return newPagemapScanReader(pageSize)
	}
	slog.Debug("page-state backend selected", "backend", BackendSoftDirty)
	return newSoftDirtyReader(pageSize)
}
