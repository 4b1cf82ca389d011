package ensemble

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coalescence-sim/coalescence-sim/sim"
	"github.com/coalescence-sim/coalescence-sim/sim/sink"
	"github.com/coalescence-sim/coalescence-sim/sim/trace"
)

func testConfig(realizations, workers int) Config {
	return Config{
		Realizations: realizations,
		Workers:      workers,
		Seed:         42,
		TraceLevel:   trace.TraceLevelEvents,
		Engine:       sim.Config{Dimension: 2, Agents: 15, Selectivity: 0.8293},
	}
}

// memorySink records every event per realization index.
// Writes past failAfter events fail when failAfter is positive.
type memorySink struct {
	mu        sync.Mutex
	failAfter int
	events    map[int][]sim.MergeEvent
	closed    map[int]bool
	aborted   map[int]bool
}

func newMemorySink() *memorySink {
	return &memorySink{events: map[int][]sim.MergeEvent{}, closed: map[int]bool{}, aborted: map[int]bool{}}
}

func (m *memorySink) Open(meta sink.RealizationMeta, _ [][]float64) (sink.RealizationWriter, error) {
	return &memoryWriter{sink: m, index: meta.Index}, nil
}

func (m *memorySink) Close() error { return nil }

type memoryWriter struct {
	sink   *memorySink
	index  int
	events []sim.MergeEvent
}

func (w *memoryWriter) WriteEvent(ev sim.MergeEvent) error {
	if w.sink.failAfter > 0 && len(w.events) >= w.sink.failAfter {
		return errors.New("writer full")
	}
	w.events = append(w.events, ev)
	return nil
}

func (w *memoryWriter) Abort() error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.aborted[w.index] = true
	return nil
}

func (w *memoryWriter) Close() error {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.events[w.index] = w.events
	w.sink.closed[w.index] = true
	return nil
}

func TestRun_AllRealizationsTerminate(t *testing.T) {
	// GIVEN an ensemble of 6 realizations on 3 workers
	out := newMemorySink()

	// WHEN run
	results, err := Run(context.Background(), testConfig(6, 3), out)

	// THEN every realization collapses to one cluster after N-1 merges
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, 1, r.ClusterCount)
		assert.Equal(t, 14, r.Steps)
		assert.Equal(t, 14, r.Summary.InterClusterMerges)
		assert.Equal(t, r.FinalTime, r.Summary.FinalTime)
		assert.Len(t, out.events[i], 14)
		assert.True(t, out.closed[i])
	}
}

func TestRun_IndependentOfWorkerCount(t *testing.T) {
	// BDD: realization i sees the same stream whatever the parallelism
	serial, err := Run(context.Background(), testConfig(4, 1), nil)
	require.NoError(t, err)
	parallel, err := Run(context.Background(), testConfig(4, 4), nil)
	require.NoError(t, err)

	for i := range serial {
		assert.Equal(t, serial[i].RunID, parallel[i].RunID)
		assert.Equal(t, serial[i].Trace.Merges, parallel[i].Trace.Merges)
		assert.Equal(t, serial[i].FinalTime, parallel[i].FinalTime)
	}
	assert.NotEqual(t, serial[0].Trace.Merges, serial[1].Trace.Merges, "realizations share a stream")
}

func TestRun_SimplexFeatures(t *testing.T) {
	cfg := testConfig(2, 0)
	cfg.FeatureKind = sim.FeaturesSimplex
	cfg.Engine.InternalLinks = true

	results, err := Run(context.Background(), cfg, nil)

	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 1, r.ClusterCount)
		assert.GreaterOrEqual(t, r.Steps, 14)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no realizations", func(c *Config) { c.Realizations = 0 }},
		{"bad feature kind", func(c *Config) { c.FeatureKind = "gaussian" }},
		{"bad trace level", func(c *Config) { c.TraceLevel = "decisions" }},
		{"bad engine", func(c *Config) { c.Engine.Agents = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(2, 1)
			tt.mutate(&cfg)
			_, err := Run(context.Background(), cfg, nil)
			assert.ErrorIs(t, err, sim.ErrInvalidConfig)
		})
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testConfig(3, 1), nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRealization_TraceDisabled(t *testing.T) {
	cfg := testConfig(1, 1)
	cfg.TraceLevel = trace.TraceLevelNone

	res, err := RunRealization(context.Background(), 0, cfg, rand.New(rand.NewSource(1)), nil)

	require.NoError(t, err)
	assert.Equal(t, 14, res.Steps)
	assert.Empty(t, res.Trace.Merges)
	assert.Equal(t, 0, res.Summary.TotalEvents)
}

func TestRun_FailedRealizationIsAbortedNotCommitted(t *testing.T) {
	// GIVEN a sink that rejects the fourth event of every realization
	out := newMemorySink()
	out.failAfter = 3

	// WHEN a single realization runs
	_, err := Run(context.Background(), testConfig(1, 1), out)

	// THEN the run fails and the writer is aborted instead of closed
	require.ErrorContains(t, err, "writer full")
	assert.True(t, out.aborted[0])
	assert.False(t, out.closed[0])
	assert.Empty(t, out.events[0])
}
