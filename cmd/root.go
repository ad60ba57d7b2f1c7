package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/carpool-sim/carpool-sim/sim"
	"github.com/carpool-sim/carpool-sim/sim/dual"
	"github.com/carpool-sim/carpool-sim/sim/matching"
	"github.com/carpool-sim/carpool-sim/sim/routing"
	"github.com/carpool-sim/carpool-sim/sim/workload"
)

var (
	// CLI flags
	configFile string  // YAML configuration path; empty uses built-in defaults
	logLevel   string  // log verbosity level
	policy     string  // matching policy for single-policy runs
	duration   float64 // simulation horizon override (seconds)
	seed       int64   // random seed override
	liveMode   bool    // sample arrivals in-kernel instead of pre-generating
	outputFile string  // metrics/report JSON output path
	parallel   bool    // run the two policies on separate goroutines
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "carpool-sim",
	Short: "Discrete-event simulator for carpool matching policies",
}

// runCmd runs a single matching policy
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation under one matching policy",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg := loadConfig(cmd)

		client := routing.NewClient(routing.ClientOptions{
			ServerURL:        cfg.OSRM.ServerURL,
			CacheSize:        cfg.OSRM.CacheSize,
			Timeout:          time.Duration(cfg.OSRM.TimeoutSec * float64(time.Second)),
			FallbackSpeedKMH: cfg.OSRM.FallbackSpeedKMH,
		})
		engine := routing.NewEngine(client)

		var matcher sim.Matcher
		switch policy {
		case "fcfs":
			matcher = matching.NewFCFSMatcher(engine, cfg)
		case "optimal":
			matcher = matching.NewOptimalMatcher(engine, cfg)
		default:
			logrus.Fatalf("unknown policy %q (want fcfs or optimal)", policy)
		}

		s := sim.NewSimulator(cfg, matcher, engine)
		if liveMode {
			s.EnableLiveGeneration()
		} else {
			s.LoadStream(workload.Generate(cfg))
		}

		logrus.Infof("starting %s run: duration=%.0fs seed=%d region=%s",
			policy, cfg.Simulation.Duration, cfg.Simulation.RandomSeed, cfg.Region.Name)
		startTime := time.Now()
		s.Run(cfg.Simulation.Duration)

		s.Metrics().Print(policy, s.Now())
		logrus.Infof("processed %d events in %s (route cache: %+v, fallbacks: %d)",
			s.EventsProcessed(), time.Since(startTime), client.CacheStats(), client.FallbackCount())
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			s.DumpActivePool()
		}

		if path := metricsPath(cfg); path != "" {
			if err := s.ExportMetrics(path); err != nil {
				logrus.Fatalf("export metrics: %v", err)
			}
			logrus.Infof("metrics written to %s", path)
		}
	},
}

// compareCmd runs both policies on the identical workload
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run FCFS and optimal matching head to head on one workload",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg := loadConfig(cmd)

		runner := dual.NewRunner(cfg)
		report := runner.Run(parallel)
		report.Log()

		if outputFile != "" {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				logrus.Fatalf("marshal report: %v", err)
			}
			if err := os.WriteFile(outputFile, data, 0o644); err != nil {
				logrus.Fatalf("write report: %v", err)
			}
			logrus.Infof("report written to %s", outputFile)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadConfig reads the YAML config, or falls back to built-in defaults, and
// applies flag overrides.
func loadConfig(cmd *cobra.Command) *sim.Config {
	var cfg *sim.Config
	if configFile == "" {
		logrus.Warn("no config file specified, using built-in defaults")
		cfg = sim.DefaultConfig()
	} else {
		loaded, err := sim.LoadConfig(configFile)
		if err != nil {
			logrus.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("duration") {
		cfg.Simulation.Duration = duration
	}
	if cmd.Flags().Changed("seed") {
		cfg.Simulation.RandomSeed = seed
	}
	return cfg
}

func metricsPath(cfg *sim.Config) string {
	if outputFile != "" {
		return outputFile
	}
	return cfg.Metrics.OutputFile
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (empty = built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().Float64Var(&duration, "duration", 300, "Simulation duration in seconds (overrides config)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 42, "Random seed (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outputFile, "output", "", "Write metrics/report JSON to this path")

	runCmd.Flags().StringVar(&policy, "policy", "optimal", "Matching policy (fcfs, optimal)")
	runCmd.Flags().BoolVar(&liveMode, "live", false, "Sample arrivals in-kernel instead of pre-generating the stream")

	compareCmd.Flags().BoolVar(&parallel, "parallel", false, "Run the two policies concurrently")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
}
