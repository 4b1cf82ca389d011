package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Config holds the hyperparameters of one coalescence realization.
type Config struct {
	Dimension     int     // D, components per feature vector
	Agents        int     // N, population size
	Selectivity   float64 // s, scales distances inside the softmax
	InternalLinks bool    // allow events between agents already in the same cluster
	// Features supplies the initial vectors. nil draws them uniformly from the
	// engine's random source.
	Features FeatureSource
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	if c.Agents <= 0 {
		return fmt.Errorf("%w: agent count must be positive, got %d", ErrInvalidConfig, c.Agents)
	}
	if math.IsNaN(c.Selectivity) || math.IsInf(c.Selectivity, 0) {
		return fmt.Errorf("%w: selectivity must be finite, got %v", ErrInvalidConfig, c.Selectivity)
	}
	return nil
}

// resyncBelow is the maintained total under which Step recomputes it exactly.
// Near the end of a run the remaining mass can be smaller than the rounding
// accumulated by incremental updates.
const resyncBelow = 1e-6

// Engine is a Gillespie-style coalescence state machine.
//
// It is Running while more than one cluster exists and Terminated once a
// single cluster holds every agent; stepping a terminated engine reports
// Continued=false and changes nothing.
//
// Clusters are identified by the index of their founding agent. A cluster
// that has been absorbed keeps its handle with an empty member list, so
// handles stay valid for the whole run.
//
// Thread-safety: NOT thread-safe. Independent engines share no state and can
// run in parallel, each with its own RandomSource.
type Engine struct {
	cfg Config
	rng RandomSource

	clock        float64
	clusterCount int
	steps        int

	features [][]float64
	clusters [][]int // handle -> members
	location []int   // agent -> handle

	last         Link
	lastInternal bool
	hasLast      bool

	rate          float64 // R = 2 / N^2
	normalization float64 // softmax LogSum of the initial scores
	propensity    *LowerTriangle

	failed error
}

// NewEngine creates N singleton clusters, draws their feature vectors and
// builds the initial propensity matrix.
func NewEngine(cfg Config, rng RandomSource) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is nil", ErrInvalidConfig)
	}

	src := cfg.Features
	if src == nil {
		src = UniformFeatures{RNG: rng}
	}
	features, err := src.Features(cfg.Agents, cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("initializing features: %w", err)
	}
	if len(features) != cfg.Agents {
		return nil, fmt.Errorf("%w: feature source returned %d vectors for %d agents",
			ErrInvalidConfig, len(features), cfg.Agents)
	}
	for i, v := range features {
		if len(v) != cfg.Dimension {
			return nil, fmt.Errorf("%w: agent %d has %d components, want %d",
				ErrDimensionMismatch, i, len(v), cfg.Dimension)
		}
	}

	e := &Engine{
		cfg:          cfg,
		rng:          rng,
		clusterCount: cfg.Agents,
		features:     features,
		clusters:     make([][]int, cfg.Agents),
		location:     make([]int, cfg.Agents),
		rate:         2.0 / float64(cfg.Agents*cfg.Agents),
	}
	for i := 0; i < cfg.Agents; i++ {
		e.clusters[i] = []int{i}
		e.location[i] = i
	}

	lt, norm, err := BuildPropensities(features, cfg.Selectivity)
	if err != nil {
		return nil, fmt.Errorf("initializing propensities: %w", err)
	}
	e.propensity = lt
	e.normalization = norm

	logrus.Debugf("engine: D=%d N=%d s=%v internal=%v total=%v norm=%v",
		cfg.Dimension, cfg.Agents, cfg.Selectivity, cfg.InternalLinks, lt.Total(), norm)
	return e, nil
}

// Step performs one kinetic Monte Carlo transition: it draws the waiting time
// and the event, then merges the selected pair.
//
// All checks run before any state is touched, so a failed step leaves the
// engine exactly as it was. A consistency failure is fatal: every later call
// returns ErrEngineFailed.
func (e *Engine) Step() (StepResult, error) {
	if e.failed != nil {
		return StepResult{Time: e.clock}, fmt.Errorf("%w: %v", ErrEngineFailed, e.failed)
	}

	r1 := e.rng.Float64()
	r2 := e.rng.Float64()

	if e.clusterCount == 1 {
		return StepResult{Time: e.clock}, nil
	}
	if e.propensity.Total() < resyncBelow {
		e.propensity.Resync()
	}
	alpha := e.propensity.Total()

	if r1 <= 0 {
		r1 = math.SmallestNonzeroFloat64
	}
	dt := (1.0 / (e.rate * e.normalization)) * math.Log(1.0/r1)

	val := r2 * alpha
	index, err := e.propensity.SearchFirstExceeding(val)
	if err != nil {
		return e.fail(err)
	}
	row, col := TriangleRowCol(index)
	if row >= e.cfg.Agents || col >= e.cfg.Agents || row == col {
		return e.fail(&ConsistencyError{
			Op: "select", Threshold: val, Total: alpha, Dim: e.cfg.Agents, Row: row, Col: col,
			Detail: "selected pair is out of range or diagonal",
		})
	}

	if err := e.merge(row, col); err != nil {
		return e.fail(err)
	}
	e.clock += dt
	e.steps++

	logrus.Debugf("[step %d] t=%.6g merged %d and %d (internal=%v, clusters=%d, total=%.6g)",
		e.steps, e.clock, row, col, e.lastInternal, e.clusterCount, e.propensity.Total())
	return StepResult{Event: e.last, Time: e.clock, Continued: true}, nil
}

func (e *Engine) fail(err error) (StepResult, error) {
	e.failed = err
	logrus.Errorf("engine stopped at step %d: %v", e.steps, err)
	return StepResult{Time: e.clock}, err
}

// merge applies the transition for the selected pair (a1, a2).
func (e *Engine) merge(a1, a2 int) error {
	c1, c2 := e.location[a1], e.location[a2]

	if c1 == c2 {
		if !e.cfg.InternalLinks {
			w, _ := e.propensity.Get(a1, a2)
			return &ConsistencyError{
				Op: "merge", Threshold: -1, Total: e.propensity.Total(), Dim: e.cfg.Agents, Row: a1, Col: a2,
				Detail: fmt.Sprintf("internal pair (weight %g) in cluster %d while internal links are disabled", w, c1),
			}
		}
		if err := e.propensity.Set(a1, a2, 0); err != nil {
			return err
		}
		e.record(a1, a2, true)
		return nil
	}

	if e.cfg.InternalLinks {
		if err := e.propensity.Set(a1, a2, 0); err != nil {
			return err
		}
	} else {
		for _, i := range e.clusters[c1] {
			for _, j := range e.clusters[c2] {
				if err := e.propensity.Set(i, j, 0); err != nil {
					return err
				}
			}
		}
	}

	e.clusterCount--
	for _, j := range e.clusters[c2] {
		e.clusters[c1] = append(e.clusters[c1], j)
		e.location[j] = c1
	}
	e.clusters[c2] = e.clusters[c2][:0]
	e.record(a1, a2, false)
	return nil
}

func (e *Engine) record(a1, a2 int, internal bool) {
	e.last = Link{Agent1: a1, Agent2: a2}
	e.lastInternal = internal
	e.hasLast = true
}

// Run steps the engine until it terminates, calling fn after every accepted
// event. ctx is checked between steps only; a step is never interrupted.
func (e *Engine) Run(ctx context.Context, fn func(MergeEvent) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := e.Step()
		if err != nil {
			return err
		}
		if !res.Continued {
			return nil
		}
		if fn == nil {
			continue
		}
		if err := fn(e.lastMergeEvent()); err != nil {
			return err
		}
	}
}

func (e *Engine) lastMergeEvent() MergeEvent {
	return MergeEvent{
		Agent1:       e.last.Agent1,
		Agent2:       e.last.Agent2,
		Step:         e.steps,
		Time:         e.clock,
		Internal:     e.lastInternal,
		ClusterCount: e.clusterCount,
	}
}

// === Accessors ===

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// AgentCount returns N.
func (e *Engine) AgentCount() int { return e.cfg.Agents }

// Dimension returns D.
func (e *Engine) Dimension() int { return e.cfg.Dimension }

// Selectivity returns s.
func (e *Engine) Selectivity() float64 { return e.cfg.Selectivity }

// InternalLinksAllowed reports whether same-cluster events are enabled.
func (e *Engine) InternalLinksAllowed() bool { return e.cfg.InternalLinks }

// Time returns the simulation clock.
func (e *Engine) Time() float64 { return e.clock }

// ClusterCount returns the number of non-empty clusters.
func (e *Engine) ClusterCount() int { return e.clusterCount }

// Steps returns the number of accepted events so far.
func (e *Engine) Steps() int { return e.steps }

// Terminated reports whether every agent is in a single cluster.
func (e *Engine) Terminated() bool { return e.clusterCount == 1 }

// NormalizationConstant returns the softmax LogSum used to rescale time.
func (e *Engine) NormalizationConstant() float64 { return e.normalization }

// RateConstant returns R = 2 / N^2.
func (e *Engine) RateConstant() float64 { return e.rate }

// LastEvent returns the most recently accepted pair. ok is false before the
// first event.
func (e *Engine) LastEvent() (link Link, ok bool) {
	return e.last, e.hasLast
}

// LastMergeEvent returns the most recent accepted event with its step index
// and clock. ok is false before the first event.
func (e *Engine) LastMergeEvent() (MergeEvent, bool) {
	if !e.hasLast {
		return MergeEvent{}, false
	}
	return e.lastMergeEvent(), true
}

// AgentFeatures returns a copy of agent i's feature vector.
func (e *Engine) AgentFeatures(i int) ([]float64, error) {
	if i < 0 || i >= e.cfg.Agents {
		return nil, fmt.Errorf("%w: agent %d of %d", ErrOutOfRange, i, e.cfg.Agents)
	}
	return append([]float64(nil), e.features[i]...), nil
}

// Features returns a copy of every agent's feature vector.
func (e *Engine) Features() [][]float64 {
	out := make([][]float64, len(e.features))
	for i, v := range e.features {
		out[i] = append([]float64(nil), v...)
	}
	return out
}

// ClusterMembers returns a copy of the members of the cluster with the given
// handle. Absorbed clusters return an empty slice.
func (e *Engine) ClusterMembers(handle int) ([]int, error) {
	if handle < 0 || handle >= len(e.clusters) {
		return nil, fmt.Errorf("%w: cluster %d of %d", ErrOutOfRange, handle, len(e.clusters))
	}
	return append([]int{}, e.clusters[handle]...), nil
}

// AgentCluster returns the handle of the cluster agent i belongs to.
func (e *Engine) AgentCluster(i int) (int, error) {
	if i < 0 || i >= e.cfg.Agents {
		return 0, fmt.Errorf("%w: agent %d of %d", ErrOutOfRange, i, e.cfg.Agents)
	}
	return e.location[i], nil
}

// Clusters returns the non-empty clusters keyed by handle.
func (e *Engine) Clusters() map[int][]int {
	out := make(map[int][]int, e.clusterCount)
	for h, members := range e.clusters {
		if len(members) > 0 {
			out[h] = append([]int(nil), members...)
		}
	}
	return out
}

// Propensities returns a copy of the current propensity matrix.
func (e *Engine) Propensities() *LowerTriangle {
	return e.propensity.Clone()
}
