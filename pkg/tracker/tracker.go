//go:build linux

package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ddps-lab/criu-test-workload/pkg/report"
	"github.com/ddps-lab/criu-test-workload/pkg/system/proc"
	"github.com/ddps-lab/criu-test-workload/pkg/types"
	"github.com/ddps-lab/criu-test-workload/pkg/vma"
)

// Config carries the run parameters for a Tracker.
type Config struct {
	RootPid       int
	Interval      time.Duration
	Duration      time.Duration // <= 0: run until the context is cancelled
	TrackChildren bool
	Workload      string

	// Progress, when set, is called once every ten samples with the sample
	// count, the dirty-page count of the last sample, and the number of
	// processes tracked at that tick.
	Progress func(sampleCount, dirtyCount, processCount int)
}

// Tracker samples dirty pages across a root process and (optionally) its
// descendants at a fixed cadence. Not safe for concurrent use; Run owns all
// state until it returns.
type Tracker struct {
	cfg      Config
	pageSize int

	reader   pageReader
	backend  string
	tracked  map[int]*Process
	deadPids map[int]struct{}

	samples     []report.Sample
	uniqueAddrs map[uint64]struct{}
	startTime   time.Time
}

// New creates a Tracker. The root process is not opened until Run.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:         cfg,
		pageSize:    proc.PageSize(),
		tracked:     map[int]*Process{},
		deadPids:    map[int]struct{}{},
		uniqueAddrs: map[uint64]struct{}{},
	}
}

// Backend returns the page-state backend chosen for this run; empty before
// Run has opened the root process.
func (t *Tracker) Backend() string { return t.backend }

// Run drives the sampling loop until the configured duration elapses or ctx
// is cancelled, then drains (closes every open handle). It returns an error
// wrapping ErrRootUnavailable if the root process cannot be opened at start;
// every other termination path is a normal drain and returns nil.
func (t *Tracker) Run(ctx context.Context) error {
	root, err := OpenProcess(t.cfg.RootPid)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnavailable, err)
	}
	t.tracked[root.pid] = root
	t.reader = selectReader(root, t.pageSize)
	t.backend = t.reader.name()

	// Baseline reset: the first sample reports only writes after this point.
	if err := root.ClearSoftDirty(); err != nil {
		slog.Debug("initial soft-dirty reset failed", "pid", root.pid, "err", err)
	}

	defer t.drain()

	t.startTime = time.Now()
	var deadline time.Time
	if t.cfg.Duration > 0 {
		deadline = t.startTime.Add(t.cfg.Duration)
	}

	for {
		tickStart := time.Now()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !deadline.IsZero() && !tickStart.Before(deadline) {
			return nil
		}

		if t.cfg.TrackChildren {
			t.discover()
		}
		t.retireDead()
		if len(t.tracked) == 0 {
			// The root has exited and nothing is left to observe.
			slog.Debug("no processes left to track, draining")
			return nil
		}
		t.sample()

		// Sleep only for what remains of the interval; a slow tick never
		// sleeps negative time and missed ticks are not burst-replayed.
		if remaining := t.cfg.Interval - time.Since(tickStart); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// Report builds the final document from the collected samples. Valid after
// Run has returned, whether the run completed or was cancelled.
func (t *Tracker) Report() report.Report {
	return report.Build(report.Meta{
		Workload:      t.cfg.Workload,
		RootPid:       t.cfg.RootPid,
		TrackChildren: t.cfg.TrackChildren,
		IntervalMs:    float64(t.cfg.Interval.Milliseconds()),
		PageSize:      t.pageSize,
		Backend:       t.backend,
	}, t.samples, len(t.uniqueAddrs))
}

// discover walks the descendant tree from the root and starts tracking any
// PID not already known and not previously retired.
func (t *Tracker) discover() {
	queue := []int{t.cfg.RootPid}
	seen := map[int]struct{}{t.cfg.RootPid: {}}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		kids, err := proc.ReadProcChildren(pid)
		if err != nil {
			continue
		}
		for _, kid := range kids {
			if _, ok := seen[kid]; ok {
				continue
			}
			seen[kid] = struct{}{}
			queue = append(queue, kid)
			t.track(kid)
		}
	}
}

func (t *Tracker) track(pid int) {
	if _, ok := t.tracked[pid]; ok {
		return
	}
	if _, ok := t.deadPids[pid]; ok {
		return
	}
	p, err := OpenProcess(pid)
	if err != nil {
		// Expected for short-lived children; the PID is never retried.
		t.deadPids[pid] = struct{}{}
		return
	}
	// Reset at first tracking so this process's first sample reflects
	// activity after discovery, not since its birth.
	_ = p.ClearSoftDirty()
	t.tracked[pid] = p
	comm, _ := proc.ReadComm(pid)
	slog.Debug("tracking child process", "pid", pid, "comm", comm)
}

func (t *Tracker) retireDead() {
	for pid, p := range t.tracked {
		if p.Alive() {
			continue
		}
		p.Close()
		delete(t.tracked, pid)
		t.deadPids[pid] = struct{}{}
		slog.Debug("retired exited process", "pid", pid)
	}
}

func (t *Tracker) sample() {
	dirty := make([]report.DirtyPage, 0, 64)
	pids := make([]int, 0, len(t.tracked))

	for pid, p := range t.tracked {
		pids = append(pids, pid)
		regions, err := vma.ParseMaps(pid)
		if err != nil {
			// Process likely exited mid-tick; it is retired next tick.
			continue
		}
		pages, err := t.reader.readDirty(p, regions)
		if err == nil {
			for _, pg := range pages {
				t.uniqueAddrs[pg.Addr] = struct{}{}
				dirty = append(dirty, report.DirtyPage{
					Addr:     types.Addr(pg.Addr),
					VMAType:  pg.VMAType,
					VMAPerms: pg.Perms,
					Pathname: pg.Pathname,
					Size:     t.pageSize,
				})
			}
		}
		// Reset strictly after this process's pages were read for this tick.
		_ = p.ClearSoftDirty()
	}
	slices.Sort(pids)

	t.samples = append(t.samples, report.Sample{
		TimestampMs:     float64(time.Since(t.startTime).Microseconds()) / 1000.0,
		DirtyPages:      dirty,
		DeltaDirtyCount: len(dirty),
		PidsTracked:     pids,
	})

	if n := len(t.samples); t.cfg.Progress != nil && n%10 == 0 {
		t.cfg.Progress(n, len(dirty), len(pids))
	}
}

// drain releases every open handle, regardless of how the run ended.
func (t *Tracker) drain() {
	for pid, p := range t.tracked {
		p.Close()
		delete(t.tracked, pid)
	}
}
