package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ddps-lab/criu-test-workload/pkg/types"
)

// DirtyPage is one page found dirty in a sample.
type DirtyPage struct {
	Addr     types.Addr `json:"addr"`
	VMAType  string     `json:"vma_type"`
	VMAPerms string     `json:"vma_perms"`
	Pathname string     `json:"pathname"`
	Size     int        `json:"size"`
}

// Sample is one point-in-time snapshot across all tracked processes.
type Sample struct {
	TimestampMs     float64     `json:"timestamp_ms"`
	DirtyPages      []DirtyPage `json:"dirty_pages"`
	DeltaDirtyCount int         `json:"delta_dirty_count"`
	PidsTracked     []int       `json:"pids_tracked"`
}

// RateEntry is one point in the dirty-rate timeline.
type RateEntry struct {
	TimestampMs      float64 `json:"timestamp_ms"`
	RatePagesPerSec  float64 `json:"rate_pages_per_sec"`
	CumulativePages  int     `json:"cumulative_pages"`
	ProcessesTracked int     `json:"processes_tracked"`
}

// Summary holds aggregate statistics over a whole run.
type Summary struct {
	TotalUniquePages    int                `json:"total_unique_pages"`
	TotalDirtyEvents    int                `json:"total_dirty_events"`
	TotalDirtySizeBytes int                `json:"total_dirty_size_bytes"`
	AvgDirtyRatePerSec  float64            `json:"avg_dirty_rate_per_sec"`
	PeakDirtyRate       float64            `json:"peak_dirty_rate"`
	VMADistribution     map[string]float64 `json:"vma_distribution"`
	VMASizeDistribution map[string]int     `json:"vma_size_distribution"`
	SampleCount         int                `json:"sample_count"`
	IntervalMs          float64            `json:"interval_ms"`
	MaxProcessesTracked int                `json:"max_processes_tracked"`
	TotalPidsSeen       []int              `json:"total_pids_seen"`
}

// Report is the final output document. Field names are fixed, downstream
// analysis tooling consumes this schema regardless of which kernel backend
// produced the data. Backend is informational only.
type Report struct {
	Workload           string      `json:"workload"`
	RootPid            int         `json:"root_pid"`
	TrackChildren      bool        `json:"track_children"`
	TrackingDurationMs float64     `json:"tracking_duration_ms"`
	PageSize           int         `json:"page_size"`
	Backend            string      `json:"backend"`
	Samples            []Sample    `json:"samples"`
	Summary            Summary     `json:"summary"`
	DirtyRateTimeline  []RateEntry `json:"dirty_rate_timeline"`
}

// Write serializes the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, creating intermediate directories.
// The whole point of a run is this document, so any failure here is fatal
// to the caller.
func (r *Report) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := r.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	return nil
}
