package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/paratreet/treecache/tree"
)

var (
	configPath string // YAML run config
	logLevel   string // Log verbosity level

	// Values of the run config flags, applied only when set
	flagCfg = DefaultRunConfig()

	// CLI flags for inspect
	inspectPE  int    // PE whose tree is rendered
	inspectRun bool   // Render the tree after one run instead of the starting view
	dotOut     string // Output file, stdout when empty
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "treecache",
	Short: "Distributed tree cache and resumable traversal simulator",
}

// runCmd decomposes a particle set and runs traversals over it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run traversals over a decomposed particle tree",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Starting run: %d particles, %d PEs, %s walk, %s runtime",
			cfg.Particles, cfg.PEs, cfg.Mode, cfg.Runtime)

		res, err := Simulate(cmd.Context(), cfg)
		if err != nil {
			logrus.Fatalf("run failed: %v", err)
		}
		if err := PrintReport(os.Stdout, res); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Run complete.")
	},
}

// inspectCmd renders one PE's tree as Graphviz
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Write one PE's tree in DOT format",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if inspectPE < 0 || inspectPE >= cfg.PEs {
			logrus.Fatalf("--pe %d out of range for %d PEs", inspectPE, cfg.PEs)
		}
		a, err := inspectArena(cmd.Context(), cfg, inspectPE, inspectRun)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		if dotOut == "" {
			err = tree.WriteDot(os.Stdout, a)
		} else {
			err = writeDotFile(dotOut, a)
		}
		if err != nil {
			logrus.Fatalf("writing dot: %v", err)
		}
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// writeDotFile renders a into path. A failed close fails the write.
func writeDotFile(path string, a *tree.Arena) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tree.WriteDot(f, a); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// inspectArena returns pe's starting view, or with afterRun its cache arena
// once a full run has finished.
func inspectArena(ctx context.Context, cfg RunConfig, pe int, afterRun bool) (*tree.Arena, error) {
	if afterRun {
		res, err := Simulate(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return res.Runtime.PEs()[pe].Cache.Arena(), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	d, err := decompose(cfg)
	if err != nil {
		return nil, err
	}
	v, err := d.BuildView(d.Assign(pe))
	if err != nil {
		return nil, err
	}
	return v.Arena, nil
}

// resolveConfig layers the config file and then every explicitly set flag
// over the defaults.
func resolveConfig(cmd *cobra.Command) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if configPath != "" {
		var err error
		if cfg, err = LoadRunConfig(configPath); err != nil {
			return cfg, err
		}
	}
	applyFlags(cmd, &cfg, flagCfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *RunConfig, f RunConfig) {
	changed := cmd.Flags().Changed
	if changed("particles") {
		cfg.Particles = f.Particles
	}
	if changed("distribution") {
		cfg.Distribution = f.Distribution
	}
	if changed("seed") {
		cfg.Seed = f.Seed
	}
	if changed("pes") {
		cfg.PEs = f.PEs
	}
	if changed("branching") {
		cfg.Branching = f.Branching
	}
	if changed("leaf-size") {
		cfg.LeafSize = f.LeafSize
	}
	if changed("subtree-size") {
		cfg.SubtreeSize = f.SubtreeSize
	}
	if changed("share-depth") {
		cfg.ShareDepth = f.ShareDepth
	}
	if changed("reply-depth") {
		cfg.ReplyDepth = f.ReplyDepth
	}
	if changed("iterations") {
		cfg.Iterations = f.Iterations
	}
	if changed("mode") {
		cfg.Mode = f.Mode
	}
	if changed("visitor") {
		cfg.Visitor = f.Visitor
	}
	if changed("theta") {
		cfg.Theta = f.Theta
	}
	if changed("count-edges") {
		cfg.CountEdges = f.CountEdges
	}
	if changed("runtime") {
		cfg.Runtime = f.Runtime
	}
	if changed("latency-base") {
		cfg.Latency.Base = f.Latency.Base
	}
	if changed("latency-jitter") {
		cfg.Latency.Jitter = f.Latency.Jitter
	}
	if changed("service-time") {
		cfg.Latency.Service = f.Latency.Service
	}
	if changed("lookup-cache-size") {
		cfg.LookupCacheSize = f.LookupCacheSize
	}
	if changed("encode") {
		cfg.EncodeMessages = f.EncodeMessages
	}
	if changed("trace") {
		cfg.Trace = f.Trace
	}
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
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML run config; flags override its values")
	pf.StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// Particle set and decomposition
	pf.IntVar(&flagCfg.Particles, "particles", d.Particles, "Number of particles")
	pf.StringVar(&flagCfg.Distribution, "distribution", d.Distribution, "Particle distribution (plummer, uniform)")
	pf.Int64Var(&flagCfg.Seed, "seed", d.Seed, "Seed for particle generation and link jitter")
	pf.IntVar(&flagCfg.PEs, "pes", d.PEs, "Number of processing elements")
	pf.IntVar(&flagCfg.Branching, "branching", d.Branching, "Tree branching factor (2 or 8)")
	pf.IntVar(&flagCfg.LeafSize, "leaf-size", d.LeafSize, "Most particles in a leaf")
	pf.IntVar(&flagCfg.SubtreeSize, "subtree-size", d.SubtreeSize, "Most particles in an owned subtree")
	pf.IntVar(&flagCfg.ShareDepth, "share-depth", d.ShareDepth, "Canopy levels every PE holds resident")

	// Traversal
	pf.IntVar(&flagCfg.Iterations, "iterations", d.Iterations, "Traversal iterations, with a cache reset in between")
	pf.StringVar(&flagCfg.Mode, "mode", d.Mode, "Traversal mode (topdown, upanddown, dual)")
	pf.StringVar(&flagCfg.Visitor, "visitor", d.Visitor, "Visitor (gravity, count)")
	pf.Float64Var(&flagCfg.Theta, "theta", d.Theta, "Barnes-Hut opening angle")
	pf.Float64SliceVar(&flagCfg.CountEdges, "count-edges", d.CountEdges, "Comma-separated ascending distance bin edges")

	// Runtime and transport
	pf.StringVar(&flagCfg.Runtime, "runtime", d.Runtime, "Runtime (event, concurrent)")
	pf.IntVar(&flagCfg.ReplyDepth, "reply-depth", d.ReplyDepth, "Levels below the requested node shipped in full")
	pf.Int64Var(&flagCfg.Latency.Base, "latency-base", d.Latency.Base, "One-way message delay in ticks")
	pf.Int64Var(&flagCfg.Latency.Jitter, "latency-jitter", d.Latency.Jitter, "Most extra ticks of per-message jitter")
	pf.Int64Var(&flagCfg.Latency.Service, "service-time", d.Latency.Service, "Ticks an owner takes to build a reply")
	pf.IntVar(&flagCfg.LookupCacheSize, "lookup-cache-size", d.LookupCacheSize, "Entries in the key lookup cache, 0 to disable")
	pf.BoolVar(&flagCfg.EncodeMessages, "encode", d.EncodeMessages, "Push every message through the CBOR codec")
	pf.StringVar(&flagCfg.Trace, "trace", d.Trace, "Fetch trace level (none, fetches)")

	inspectCmd.Flags().IntVar(&inspectPE, "pe", 0, "PE whose tree is rendered")
	inspectCmd.Flags().BoolVar(&inspectRun, "after-run", false, "Render the cache after a full run")
	inspectCmd.Flags().StringVarP(&dotOut, "out", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
}
