// Package trace provides merge-event recording for coalescence realizations.
// This package has no dependencies on sim/ — it stores pure data types.
package trace

// TraceLevel controls the verbosity of event tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every accepted merge event.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// MergeRecord captures a single accepted event.
type MergeRecord struct {
	Agent1       int
	Agent2       int
	Step         int
	Time         float64
	Internal     bool // both agents already shared a cluster
	ClusterCount int  // clusters left after the event
}

// SimulationTrace collects merge records during one realization.
type SimulationTrace struct {
	Level  TraceLevel
	Merges []MergeRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(level TraceLevel) *SimulationTrace {
	return &SimulationTrace{
		Level:  level,
		Merges: make([]MergeRecord, 0),
	}
}

// Enabled reports whether records should be collected.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Level == TraceLevelEvents
}

// RecordMerge appends a merge record. It is a no-op when tracing is disabled.
func (st *SimulationTrace) RecordMerge(record MergeRecord) {
	if !st.Enabled() {
		return
	}
	st.Merges = append(st.Merges, record)
}
