package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coalescence-sim/coalescence-sim/sim/ensemble"
	"github.com/coalescence-sim/coalescence-sim/sim/sink"
)

var (
	configPath string    // Optional YAML run configuration
	logLevel   string    // Log verbosity level
	flagCfg    RunConfig // Flag values; applied over the YAML config only when set
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "coalescence-sim",
	Short: "Kinetic Monte Carlo simulator of stochastic agent coalescence",
}

// runCmd executes the ensemble using parameters from the config file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run coalescence realizations",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := DefaultRunConfig()
		if configPath != "" {
			cfg, err = LoadRunConfig(configPath)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		applyFlagOverrides(cmd.Flags(), &cfg)
		if cfg.Seed == 0 {
			cfg.Seed = time.Now().UnixNano()
			logrus.Infof("No seed given, using %d", cfg.Seed)
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		ec, err := cfg.Ensemble()
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		logrus.Infof("Starting %d realizations: D=%d N=%d s=%v internal=%v features=%s",
			cfg.Realizations, cfg.Dimension, cfg.Agents, cfg.Selectivity, cfg.InternalLinks, cfg.Features)

		out, err := buildSink(cfg, time.Now())
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		startTime := time.Now()
		results, err := ensemble.Run(ctx, ec, out)
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}

		for _, r := range results {
			logrus.Infof("realization %d [%s]: %d events, final time %.6g, %d internal links, mean interval %.6g",
				r.Index, r.RunID, r.Steps, r.FinalTime, r.Summary.InternalLinks, r.Summary.MeanInterval)
		}
		logrus.Infof("Simulation complete in %s (%s realizations).",
			time.Since(startTime).Round(time.Millisecond), humanize.Comma(int64(len(results))))
	},
}

// applyFlagOverrides copies every flag the user set explicitly into cfg, so
// command-line values win over the YAML file.
func applyFlagOverrides(flags *pflag.FlagSet, cfg *RunConfig) {
	if flags.Changed("realizations") {
		cfg.Realizations = flagCfg.Realizations
	}
	if flags.Changed("internal") {
		cfg.InternalLinks = flagCfg.InternalLinks
	}
	if flags.Changed("dim") {
		cfg.Dimension = flagCfg.Dimension
	}
	if flags.Changed("agents") {
		cfg.Agents = flagCfg.Agents
	}
	if flags.Changed("selectivity") {
		cfg.Selectivity = flagCfg.Selectivity
	}
	if flags.Changed("out") {
		cfg.OutputDir = flagCfg.OutputDir
	}
	if flags.Changed("sqlite") {
		cfg.SQLitePath = flagCfg.SQLitePath
	}
	if flags.Changed("seed") {
		cfg.Seed = flagCfg.Seed
	}
	if flags.Changed("workers") {
		cfg.Workers = flagCfg.Workers
	}
	if flags.Changed("features") {
		cfg.Features = flagCfg.Features
	}
	if flags.Changed("simplex-frequency") {
		cfg.SimplexFrequency = flagCfg.SimplexFrequency
	}
	if flags.Changed("trace") {
		cfg.Trace = flagCfg.Trace
	}
}

// buildSink opens the CSV and SQLite sinks the configuration asks for.
func buildSink(cfg RunConfig, now time.Time) (sink.Sink, error) {
	var sinks sink.Multi
	if cfg.OutputDir != "" {
		ec, err := cfg.Ensemble()
		if err != nil {
			return nil, err
		}
		csvSink, err := sink.NewCSVSink(cfg.OutputDir, ec.Engine, now)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Writing CSV data to %s", csvSink.Dir())
		sinks = append(sinks, csvSink)
	}
	if cfg.SQLitePath != "" {
		db, err := sink.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		logrus.Infof("Writing SQLite data to %s", cfg.SQLitePath)
		sinks = append(sinks, db)
	}
	switch len(sinks) {
	case 0:
		return sink.Discard{}, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	d := DefaultRunConfig()

	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration (flags override its values)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Int64Var(&flagCfg.Seed, "seed", d.Seed, "Master seed for all realizations (0 seeds from the clock)")

	// Model hyperparameters
	runCmd.Flags().IntVar(&flagCfg.Dimension, "dim", d.Dimension, "Feature vector dimension (D)")
	runCmd.Flags().IntVar(&flagCfg.Agents, "agents", d.Agents, "Number of agents (N)")
	runCmd.Flags().Float64Var(&flagCfg.Selectivity, "selectivity", d.Selectivity, "Selectivity parameter (s)")
	runCmd.Flags().BoolVar(&flagCfg.InternalLinks, "internal", d.InternalLinks, "Allow events between agents of the same cluster")
	runCmd.Flags().StringVar(&flagCfg.Features, "features", d.Features, "Feature source (uniform, simplex)")
	runCmd.Flags().Float64Var(&flagCfg.SimplexFrequency, "simplex-frequency", d.SimplexFrequency, "Noise frequency for simplex features")

	// Ensemble and output
	runCmd.Flags().IntVar(&flagCfg.Realizations, "realizations", d.Realizations, "Number of independent realizations")
	runCmd.Flags().IntVar(&flagCfg.Workers, "workers", d.Workers, "Concurrent realizations (0 = all at once)")
	runCmd.Flags().StringVar(&flagCfg.OutputDir, "out", d.OutputDir, "Directory for CSV node/edge files (empty = no CSV)")
	runCmd.Flags().StringVar(&flagCfg.SQLitePath, "sqlite", d.SQLitePath, "SQLite database for features and events (empty = none)")
	runCmd.Flags().StringVar(&flagCfg.Trace, "trace", d.Trace, "Event trace level for summaries (none, events)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
