package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coalescence-sim/coalescence-sim/sim"
	"github.com/coalescence-sim/coalescence-sim/sim/ensemble"
	"github.com/coalescence-sim/coalescence-sim/sim/trace"
)

// RunConfig is the full run configuration, loadable from a YAML file.
// Fields absent from the file keep their defaults.
type RunConfig struct {
	Realizations     int     `yaml:"realizations"`
	InternalLinks    bool    `yaml:"internal_links"`
	Dimension        int     `yaml:"dimension"`
	Agents           int     `yaml:"agents"`
	Selectivity      float64 `yaml:"selectivity"`
	OutputDir        string  `yaml:"output_dir"`
	SQLitePath       string  `yaml:"sqlite"`
	Seed             int64   `yaml:"seed"`
	Workers          int     `yaml:"workers"`
	Features         string  `yaml:"features"`
	SimplexFrequency float64 `yaml:"simplex_frequency"`
	Trace            string  `yaml:"trace"`
}

// DefaultRunConfig mirrors the flag defaults of the run command.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Realizations:     1,
		Dimension:        2,
		Agents:           10,
		Selectivity:      1.0,
		Workers:          0,
		Features:         string(sim.FeaturesUniform),
		SimplexFrequency: 0.1,
		Trace:            string(trace.TraceLevelEvents),
	}
}

// LoadRunConfig parses a YAML run configuration on top of the defaults.
// Uses strict field checking: unknown keys are errors.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config: %w", err)
	}
	return cfg, nil
}

// Validate checks every field that the ensemble does not check itself.
func (c RunConfig) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", sim.ErrInvalidConfig, c.Workers)
	}
	if c.SimplexFrequency < 0 {
		return fmt.Errorf("%w: simplex_frequency must be non-negative, got %v", sim.ErrInvalidConfig, c.SimplexFrequency)
	}
	ec, err := c.Ensemble()
	if err != nil {
		return err
	}
	return ec.Validate()
}

// Ensemble converts the run configuration into an ensemble configuration.
func (c RunConfig) Ensemble() (ensemble.Config, error) {
	kind, err := sim.ParseFeatureKind(c.Features)
	if err != nil {
		return ensemble.Config{}, err
	}
	return ensemble.Config{
		Realizations:     c.Realizations,
		Workers:          c.Workers,
		Seed:             c.Seed,
		FeatureKind:      kind,
		SimplexFrequency: c.SimplexFrequency,
		TraceLevel:       trace.TraceLevel(c.Trace),
		Engine: sim.Config{
			Dimension:     c.Dimension,
			Agents:        c.Agents,
			Selectivity:   c.Selectivity,
			InternalLinks: c.InternalLinks,
		},
	}, nil
}
