package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coalescence-sim/coalescence-sim/sim"
)

// StampLayout is the time layout of CSV file name prefixes.
const StampLayout = "2006-01-02_15-04-05"

// FormatNumber renders a hyperparameter for a directory name: up to 15
// significant digits, with a leading "n" instead of "-" for negative values.
func FormatNumber(v float64) string {
	if v < 0 {
		return "n" + strconv.FormatFloat(-v, 'g', 15, 64)
	}
	return strconv.FormatFloat(v, 'g', 15, 64)
}

// DataFolder returns <root>/[INTERNAL_]D_<d>_N_<n>_s_<s>.
func DataFolder(root string, cfg sim.Config) string {
	var b strings.Builder
	if cfg.InternalLinks {
		b.WriteString("INTERNAL_")
	}
	fmt.Fprintf(&b, "D_%s_N_%s_s_%s",
		FormatNumber(float64(cfg.Dimension)), FormatNumber(float64(cfg.Agents)), FormatNumber(cfg.Selectivity))
	return filepath.Join(root, b.String())
}

// CSVSink writes a node file and an edge file per realization into the data
// folder of its configuration.
type CSVSink struct {
	dir   string
	stamp string
}

// NewCSVSink creates the data folder under root. now stamps the file names.
func NewCSVSink(root string, cfg sim.Config, now time.Time) (*CSVSink, error) {
	dir := DataFolder(root, cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data folder: %w", err)
	}
	return &CSVSink{dir: dir, stamp: now.Format(StampLayout)}, nil
}

// Dir returns the data folder.
func (s *CSVSink) Dir() string { return s.dir }

// Paths returns the node and edge file paths of realization index.
func (s *CSVSink) Paths(index int) (node, edge string) {
	base := filepath.Join(s.dir, fmt.Sprintf("%s-%d", s.stamp, index))
	return base + ".node.csv", base + ".edge.csv"
}

// Open writes the node file and creates the edge file of one realization.
func (s *CSVSink) Open(meta RealizationMeta, features [][]float64) (RealizationWriter, error) {
	nodePath, edgePath := s.Paths(meta.Index)

	if err := writeNodes(nodePath, meta.Config.Dimension, features); err != nil {
		return nil, err
	}

	f, err := os.Create(edgePath)
	if err != nil {
		return nil, fmt.Errorf("opening edge file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"Node1", "Node2", "Step", "Time"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing edge header: %w", err)
	}
	return &csvEdgeWriter{f: f, w: w, nodePath: nodePath}, nil
}

// Close is a no-op: every realization closes its own files.
func (s *CSVSink) Close() error { return nil }

func writeNodes(path string, dim int, features [][]float64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("opening node file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing node file: %w", cerr)
		}
	}()

	w := csv.NewWriter(f)
	header := make([]string, 0, dim+1)
	header = append(header, "NodeLabel")
	for k := 0; k < dim; k++ {
		header = append(header, "x"+strconv.Itoa(k))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing node header: %w", err)
	}
	for i, v := range features {
		row := make([]string, 0, len(v)+1)
		row = append(row, strconv.Itoa(i))
		for _, x := range v {
			row = append(row, strconv.FormatFloat(x, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing node %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}

type csvEdgeWriter struct {
	f        *os.File
	w        *csv.Writer
	nodePath string
}

func (c *csvEdgeWriter) WriteEvent(ev sim.MergeEvent) error {
	return c.w.Write([]string{
		strconv.Itoa(ev.Agent1),
		strconv.Itoa(ev.Agent2),
		strconv.Itoa(ev.Step),
		strconv.FormatFloat(ev.Time, 'g', -1, 64),
	})
}

func (c *csvEdgeWriter) Close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}

// Abort removes both files of the realization.
func (c *csvEdgeWriter) Abort() error {
	closeErr := c.f.Close()
	return errors.Join(closeErr, os.Remove(c.f.Name()), os.Remove(c.nodePath))
}
