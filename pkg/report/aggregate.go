package report

import "slices"

// Meta carries run parameters echoed into the report.
type Meta struct {
	Workload      string
	RootPid       int
	TrackChildren bool
	IntervalMs    float64
	PageSize      int
	Backend       string
}

// Build turns the completed sample sequence into the final report.
// It is a pure function: it does not mutate samples and can be called on
// a partial run (signal-cancelled) the same way as on a completed one.
//
// Aggregation rules:
//   - VMA distribution is over dirty-page observations, not unique pages.
//   - Timeline entry 0 has rate 0 (no prior baseline); entry i>0 has
//     rate = delta_i / elapsed seconds since entry i-1.
//   - Average and peak rates are computed only over entries with rate > 0,
//     so the leading zero entry does not suppress the mean.
func Build(meta Meta, samples []Sample, uniquePages int) Report {
	rep := Report{
		Workload:          meta.Workload,
		RootPid:           meta.RootPid,
		TrackChildren:     meta.TrackChildren,
		PageSize:          meta.PageSize,
		Backend:           meta.Backend,
		Samples:           samples,
		DirtyRateTimeline: []RateEntry{},
		Summary: Summary{
			VMADistribution:     map[string]float64{},
			VMASizeDistribution: map[string]int{},
			TotalPidsSeen:       []int{},
			IntervalMs:          meta.IntervalMs,
		},
	}
	if rep.Samples == nil {
		rep.Samples = []Sample{}
	}
	if len(samples) == 0 {
		return rep
	}

	rep.TrackingDurationMs = samples[len(samples)-1].TimestampMs

	vmaCounts := map[string]int{}
	totalEvents := 0
	for _, s := range samples {
		for _, p := range s.DirtyPages {
			vmaCounts[p.VMAType]++
			rep.Summary.VMASizeDistribution[p.VMAType] += p.Size
		}
		totalEvents += s.DeltaDirtyCount
	}
	if totalEvents > 0 {
		for vmaType, count := range vmaCounts {
			rep.Summary.VMADistribution[vmaType] = float64(count) / float64(totalEvents)
		}
	}

	var (
		cumulative   int
		maxProcesses int
		sumRate      float64
		rateCount    int
		peakRate     float64
		pidsSeen     = map[int]struct{}{}
	)
	timeline := make([]RateEntry, 0, len(samples))
	for i, s := range samples {
		cumulative += s.DeltaDirtyCount
		var rate float64
		if i > 0 {
			deltaSec := (s.TimestampMs - samples[i-1].TimestampMs) / 1000.0
			if deltaSec > 0 {
				rate = float64(s.DeltaDirtyCount) / deltaSec
			}
		}
		if n := len(s.PidsTracked); n > maxProcesses {
			maxProcesses = n
		}
		for _, pid := range s.PidsTracked {
			pidsSeen[pid] = struct{}{}
		}
		timeline = append(timeline, RateEntry{
			TimestampMs:      s.TimestampMs,
			RatePagesPerSec:  rate,
			CumulativePages:  cumulative,
			ProcessesTracked: len(s.PidsTracked),
		})
		if rate > 0 {
			sumRate += rate
			rateCount++
			if rate > peakRate {
				peakRate = rate
			}
		}
	}
	rep.DirtyRateTimeline = timeline

	pidList := make([]int, 0, len(pidsSeen))
	for pid := range pidsSeen {
		pidList = append(pidList, pid)
	}
	slices.Sort(pidList)

	rep.Summary.TotalUniquePages = uniquePages
	rep.Summary.TotalDirtyEvents = totalEvents
	rep.Summary.TotalDirtySizeBytes = totalEvents * meta.PageSize
	if rateCount > 0 {
		rep.Summary.AvgDirtyRatePerSec = sumRate / float64(rateCount)
	}
	rep.Summary.PeakDirtyRate = peakRate
	rep.Summary.SampleCount = len(samples)
	rep.Summary.MaxProcessesTracked = maxProcesses
	rep.Summary.TotalPidsSeen = pidList

	return rep
}
