// Package sink persists coalescence realizations: the initial agent features
// and the stream of accepted merge events.
package sink

import (
	"errors"

	"github.com/google/uuid"

	"github.com/coalescence-sim/coalescence-sim/sim"
)

// RealizationMeta identifies one realization of an ensemble.
type RealizationMeta struct {
	Index  int
	RunID  uuid.UUID
	Seed   int64
	Config sim.Config
}

// Sink opens one RealizationWriter per realization.
//
// Open and Close may be called from several goroutines; each returned
// RealizationWriter is used by a single goroutine only.
type Sink interface {
	Open(meta RealizationMeta, features [][]float64) (RealizationWriter, error)
	Close() error
}

// RealizationWriter receives the events of one realization in step order.
// Close commits a finished realization; Abort discards the events of one that
// failed or was cancelled. Exactly one of the two is called.
type RealizationWriter interface {
	WriteEvent(ev sim.MergeEvent) error
	Close() error
	Abort() error
}

// Discard drops everything.
type Discard struct{}

// Open returns a writer that drops every event.
func (Discard) Open(RealizationMeta, [][]float64) (RealizationWriter, error) {
	return discardWriter{}, nil
}

// Close is a no-op.
func (Discard) Close() error { return nil }

type discardWriter struct{}

func (discardWriter) WriteEvent(sim.MergeEvent) error { return nil }
func (discardWriter) Close() error                   { return nil }
func (discardWriter) Abort() error                   { return nil }

// Multi fans every call out to all of its sinks.
type Multi []Sink

// Open opens a writer on every sink. If one fails, the writers already
// opened are aborted.
func (m Multi) Open(meta RealizationMeta, features [][]float64) (RealizationWriter, error) {
	writers := make(multiWriter, 0, len(m))
	for _, s := range m {
		w, err := s.Open(meta, features)
		if err != nil {
			_ = writers.Abort()
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

type multiWriter []RealizationWriter

func (m multiWriter) WriteEvent(ev sim.MergeEvent) error {
	for _, w := range m {
		if err := w.WriteEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m multiWriter) Close() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func (m multiWriter) Abort() error {
	var errs []error
	for _, w := range m {
		errs = append(errs, w.Abort())
	}
	return errors.Join(errs...)
}
