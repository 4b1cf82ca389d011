package sim

import (
	"errors"
	"fmt"
)

// Configuration errors are reported to the caller at construction time.
// Consistency errors mean a broken invariant inside the engine and are fatal.
var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrDimensionMismatch = fmt.Errorf("%w: feature vector dimension mismatch", ErrInvalidConfig)
	ErrInvalidInput      = errors.New("invalid input")
	ErrOutOfRange        = errors.New("index out of range")
	ErrInvalidWeight     = errors.New("invalid weight")
	ErrConsistency       = errors.New("consistency check failed")
	ErrEngineFailed      = errors.New("engine stopped after a consistency failure")
)

// ConsistencyError carries the diagnostic state captured when an engine or
// matrix invariant is found broken. Fields that do not apply are left at -1.
type ConsistencyError struct {
	Op        string
	Threshold float64
	Total     float64
	Dim       int
	Row       int
	Col       int
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s: %s (threshold=%g total=%g dim=%d row=%d col=%d)",
		ErrConsistency, e.Op, e.Detail, e.Threshold, e.Total, e.Dim, e.Row, e.Col)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// IsFatal reports whether err is an unrecoverable consistency failure rather
// than a caller error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConsistency) || errors.Is(err, ErrEngineFailed)
}
