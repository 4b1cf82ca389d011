package trace

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalEvents        int
	InterClusterMerges int
	InternalLinks      int
	FinalTime          float64
	MeanInterval       float64 // mean waiting time between consecutive events
	StdDevInterval     float64
	MaxInterval        float64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{}
	if st == nil || len(st.Merges) == 0 {
		return summary
	}

	summary.TotalEvents = len(st.Merges)
	intervals := make([]float64, 0, len(st.Merges))
	prev := 0.0
	for _, m := range st.Merges {
		if m.Internal {
			summary.InternalLinks++
		} else {
			summary.InterClusterMerges++
		}
		dt := m.Time - prev
		intervals = append(intervals, dt)
		summary.MaxInterval = math.Max(summary.MaxInterval, dt)
		prev = m.Time
	}
	summary.FinalTime = prev

	if len(intervals) > 1 {
		summary.MeanInterval, summary.StdDevInterval = stat.MeanStdDev(intervals, nil)
	} else {
		summary.MeanInterval = intervals[0]
	}
	return summary
}
