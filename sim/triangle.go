package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LowerTriangle stores one non-negative weight per unordered index pair
// (r, c), diagonal included, for indices in [0, dim).
//
// Entries live in a single slice in row-major lower-triangular order:
// (0,0), (1,0), (1,1), (2,0), ... The running total of all entries is
// maintained on every write so that Total is O(1).
//
// Thread-safety: NOT thread-safe. Each engine owns its own matrix.
type LowerTriangle struct {
	dim   int
	arr   []float64
	total float64
}

// TriangleSize returns the number of slots of a lower triangle of dimension dim.
func TriangleSize(dim int) int {
	return dim * (dim + 1) / 2
}

// TriangleIndex maps an unordered pair to its linear slot. The pair order does
// not matter: (r, c) and (c, r) share a slot.
func TriangleIndex(r, c int) int {
	row, col := max(r, c), min(r, c)
	return row*(row+1)/2 + col
}

// TriangleRowCol is the inverse of TriangleIndex. It always returns col <= row.
func TriangleRowCol(index int) (row, col int) {
	row = int((math.Sqrt(8*float64(index)+1) - 1) / 2)
	// sqrt may land one off for large indices
	for row*(row+1)/2 > index {
		row--
	}
	for (row+1)*(row+2)/2 <= index {
		row++
	}
	return row, index - row*(row+1)/2
}

// NewLowerTriangle creates a zero-filled lower triangle of the given dimension.
// A negative dimension yields an empty matrix; callers validate sizes first.
func NewLowerTriangle(dim int) *LowerTriangle {
	if dim < 0 {
		dim = 0
	}
	return &LowerTriangle{
		dim: dim,
		arr: make([]float64, TriangleSize(dim)),
	}
}

// Dim returns the current dimension.
func (lt *LowerTriangle) Dim() int { return lt.dim }

// Size returns the number of stored slots, dim*(dim+1)/2.
func (lt *LowerTriangle) Size() int { return len(lt.arr) }

// Total returns the maintained sum of all entries.
func (lt *LowerTriangle) Total() float64 { return lt.total }

// Sum recomputes the sum of all entries from scratch.
func (lt *LowerTriangle) Sum() float64 { return floats.Sum(lt.arr) }

func (lt *LowerTriangle) checkPair(r, c int) error {
	if r < 0 || c < 0 || r >= lt.dim || c >= lt.dim {
		return fmt.Errorf("%w: (%d, %d) with dim %d", ErrOutOfRange, r, c, lt.dim)
	}
	return nil
}

func (lt *LowerTriangle) checkIndex(i int) error {
	if i < 0 || i >= len(lt.arr) {
		return fmt.Errorf("%w: slot %d with size %d", ErrOutOfRange, i, len(lt.arr))
	}
	return nil
}

// Get returns the weight of pair (r, c).
func (lt *LowerTriangle) Get(r, c int) (float64, error) {
	if err := lt.checkPair(r, c); err != nil {
		return 0, err
	}
	return lt.arr[TriangleIndex(r, c)], nil
}

// GetAt returns the weight stored at linear slot i.
func (lt *LowerTriangle) GetAt(i int) (float64, error) {
	if err := lt.checkIndex(i); err != nil {
		return 0, err
	}
	return lt.arr[i], nil
}

// Set overwrites the weight of pair (r, c) and adjusts the running total.
func (lt *LowerTriangle) Set(r, c int, v float64) error {
	if err := lt.checkPair(r, c); err != nil {
		return err
	}
	return lt.SetAt(TriangleIndex(r, c), v)
}

// SetAt overwrites the weight at linear slot i and adjusts the running total.
func (lt *LowerTriangle) SetAt(i int, v float64) error {
	if err := lt.checkIndex(i); err != nil {
		return err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v at slot %d", ErrInvalidWeight, v, i)
	}
	lt.total += v - lt.arr[i]
	if lt.total < 0 {
		lt.total = 0
	}
	lt.arr[i] = v
	return nil
}

// Resync replaces the maintained total with an exact recomputation.
func (lt *LowerTriangle) Resync() {
	lt.total = lt.Sum()
}

// SearchFirstExceeding scans the slots in linear order and returns the first
// positive-weight slot at which the running prefix sum reaches threshold.
//
// Callers pass threshold = u * Total() with u in [0, 1), which makes the
// returned slot a sample from the categorical distribution of the weights.
// A threshold above the maintained total means the total no longer matches
// the contents; that is reported as a *ConsistencyError.
func (lt *LowerTriangle) SearchFirstExceeding(threshold float64) (int, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > lt.total {
		return -1, &ConsistencyError{
			Op: "search", Threshold: threshold, Total: lt.total, Dim: lt.dim, Row: -1, Col: -1,
			Detail: "threshold outside [0, total]",
		}
	}

	var cum float64
	last := -1
	for i, w := range lt.arr {
		if w <= 0 {
			continue
		}
		cum += w
		last = i
		if cum >= threshold {
			return i, nil
		}
	}
	if last < 0 {
		return -1, &ConsistencyError{
			Op: "search", Threshold: threshold, Total: lt.total, Dim: lt.dim, Row: -1, Col: -1,
			Detail: "no positive weight left",
		}
	}
	// threshold is within the maintained total but the scan fell short of it
	// by accumulated rounding
	return last, nil
}

// Grow extends the dimension by one. The new row is zero-filled.
func (lt *LowerTriangle) Grow() {
	lt.dim++
	lt.arr = append(lt.arr, make([]float64, lt.dim)...)
}

// RemoveRow deletes row and column n, shifting higher indices down by one.
// The removed weights are subtracted from the running total.
func (lt *LowerTriangle) RemoveRow(n int) error {
	if n < 0 || n >= lt.dim {
		return fmt.Errorf("%w: row %d with dim %d", ErrOutOfRange, n, lt.dim)
	}
	next := make([]float64, 0, TriangleSize(lt.dim-1))
	for i, w := range lt.arr {
		r, c := TriangleRowCol(i)
		if r == n || c == n {
			lt.total = max(lt.total-w, 0)
			continue
		}
		// row-major order is preserved, so appending lands each kept weight on
		// its shifted slot
		next = append(next, w)
	}
	lt.arr = next
	lt.dim--
	return nil
}

// Clone returns a deep copy.
func (lt *LowerTriangle) Clone() *LowerTriangle {
	arr := make([]float64, len(lt.arr))
	copy(arr, lt.arr)
	return &LowerTriangle{dim: lt.dim, arr: arr, total: lt.total}
}

// Reset replaces every entry, the dimension and the running total with a copy
// of other's.
func (lt *LowerTriangle) Reset(other *LowerTriangle) {
	lt.dim = other.dim
	lt.arr = append(lt.arr[:0], other.arr...)
	lt.total = other.total
}
