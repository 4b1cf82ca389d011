// Package ensemble runs independent realizations of the coalescence process.
//
// Realizations share no mutable state: each one owns its engine, its
// propensity matrix, its random stream and its sink writer. That makes them
// safe to run on separate goroutines, which is the only concurrency the
// engine supports.
package ensemble

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/coalescence-sim/coalescence-sim/sim"
	"github.com/coalescence-sim/coalescence-sim/sim/sink"
	"github.com/coalescence-sim/coalescence-sim/sim/trace"
)

// Config describes an ensemble of realizations sharing hyperparameters.
type Config struct {
	Realizations     int
	Workers          int // concurrent realizations; <= 0 means one per realization
	Seed             int64
	Engine           sim.Config
	FeatureKind      sim.FeatureKind
	SimplexFrequency float64
	TraceLevel       trace.TraceLevel
}

// Validate checks the ensemble and engine parameters.
func (c Config) Validate() error {
	if c.Realizations <= 0 {
		return fmt.Errorf("%w: realizations must be positive, got %d", sim.ErrInvalidConfig, c.Realizations)
	}
	if _, err := sim.ParseFeatureKind(string(c.FeatureKind)); err != nil {
		return err
	}
	if !trace.IsValidTraceLevel(string(c.TraceLevel)) {
		return fmt.Errorf("%w: unknown trace level %q", sim.ErrInvalidConfig, c.TraceLevel)
	}
	return c.Engine.Validate()
}

// Result reports one finished realization.
type Result struct {
	Index        int
	RunID        uuid.UUID
	Seed         int64
	Steps        int
	FinalTime    float64
	ClusterCount int
	Summary      *trace.TraceSummary
	Trace        *trace.SimulationTrace
}

// stream is the randomness handed to one realization.
type stream struct {
	rng         *rand.Rand
	seed        int64
	featureSeed int64
	runID       uuid.UUID
}

// deriveStreams draws every per-realization stream from one goroutine, so
// the assignment does not depend on worker scheduling.
func deriveStreams(cfg Config) ([]stream, error) {
	prng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	ids := prng.ForSubsystem(sim.SubsystemRunIDs)
	features := prng.ForSubsystem(sim.SubsystemFeatures)

	out := make([]stream, cfg.Realizations)
	for i := range out {
		name := sim.SubsystemRealization(i)
		id, err := uuid.NewRandomFromReader(ids)
		if err != nil {
			return nil, fmt.Errorf("run id for realization %d: %w", i, err)
		}
		out[i] = stream{
			rng:         prng.ForRealization(i),
			seed:        prng.SeedFor(name),
			featureSeed: features.Int63(),
			runID:       id,
		}
	}
	return out, nil
}

// Run executes every realization of cfg and returns their results ordered by
// index. The first failure cancels the realizations still running.
func Run(ctx context.Context, cfg Config, out sink.Sink) ([]*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = sink.Discard{}
	}
	streams, err := deriveStreams(cfg)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 || workers > cfg.Realizations {
		workers = cfg.Realizations
	}
	logrus.Infof("running %s realizations on %d workers (seed=%d)",
		humanize.Comma(int64(cfg.Realizations)), workers, cfg.Seed)

	results := make([]*Result, cfg.Realizations)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range streams {
		i := i
		g.Go(func() error {
			res, err := runStream(gctx, i, cfg, streams[i], out)
			if err != nil {
				return fmt.Errorf("realization %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunRealization executes a single realization with a caller-owned random
// source. Features are drawn from rng unless cfg selects simplex noise, in
// which case they are seeded from the ensemble seed.
func RunRealization(ctx context.Context, index int, cfg Config, rng sim.RandomSource, out sink.Sink) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = sink.Discard{}
	}
	return runWith(ctx, index, cfg, rng, cfg.Seed, cfg.Seed, uuid.New(), out)
}

func runStream(ctx context.Context, index int, cfg Config, st stream, out sink.Sink) (*Result, error) {
	return runWith(ctx, index, cfg, st.rng, st.seed, st.featureSeed, st.runID, out)
}

func runWith(ctx context.Context, index int, cfg Config, rng sim.RandomSource, seed, featureSeed int64,
	runID uuid.UUID, out sink.Sink) (res *Result, err error) {
	engineCfg := cfg.Engine
	if cfg.FeatureKind == sim.FeaturesSimplex && engineCfg.Features == nil {
		engineCfg.Features = sim.SimplexFeatures{Seed: featureSeed, Frequency: cfg.SimplexFrequency}
	}

	eng, err := sim.NewEngine(engineCfg, rng)
	if err != nil {
		return nil, err
	}

	w, err := out.Open(sink.RealizationMeta{Index: index, RunID: runID, Seed: seed, Config: engineCfg}, eng.Features())
	if err != nil {
		return nil, fmt.Errorf("opening sink: %w", err)
	}
	defer func() {
		if err != nil {
			if aerr := w.Abort(); aerr != nil {
				logrus.Warnf("realization %d: discarding sink output: %v", index, aerr)
			}
			return
		}
		if cerr := w.Close(); cerr != nil {
			res, err = nil, fmt.Errorf("closing sink: %w", cerr)
		}
	}()

	level := cfg.TraceLevel
	if level == "" {
		level = trace.TraceLevelNone
	}
	st := trace.NewSimulationTrace(level)
	logrus.Debugf("realization %d (%s) started", index, runID)

	err = eng.Run(ctx, func(ev sim.MergeEvent) error {
		st.RecordMerge(trace.MergeRecord{
			Agent1:       ev.Agent1,
			Agent2:       ev.Agent2,
			Step:         ev.Step,
			Time:         ev.Time,
			Internal:     ev.Internal,
			ClusterCount: ev.ClusterCount,
		})
		return w.WriteEvent(ev)
	})
	if err != nil {
		return nil, err
	}

	res = &Result{
		Index:        index,
		RunID:        runID,
		Seed:         seed,
		Steps:        eng.Steps(),
		FinalTime:    eng.Time(),
		ClusterCount: eng.ClusterCount(),
		Summary:      trace.Summarize(st),
		Trace:        st,
	}
	logrus.Infof("realization %d finished: %s events, t=%.6g", index, humanize.Comma(int64(res.Steps)), res.FinalTime)
	return res, nil
}
