package sim

// Link is an unordered agent pair selected by an accepted event, kept in the
// order the selection produced it: Agent1 is the matrix row, Agent2 the column.
type Link struct {
	Agent1 int
	Agent2 int
}

// StepResult is what a single Step reports.
type StepResult struct {
	Event     Link    // pair merged by this step; zero value when Continued is false
	Time      float64 // simulation clock after the step
	Continued bool    // false once the population has collapsed into one cluster
}

// MergeEvent is an accepted event as seen by drivers and sinks.
type MergeEvent struct {
	Agent1       int
	Agent2       int
	Step         int     // 1-based index of the accepted event
	Time         float64 // clock after the event
	Internal     bool    // both agents were already in the same cluster
	ClusterCount int     // clusters left after the event
}
