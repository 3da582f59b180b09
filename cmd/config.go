package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/cluster"
	"github.com/paratreet/treecache/tree/decomp"
	"github.com/paratreet/treecache/tree/trace"
	"github.com/paratreet/treecache/tree/traverse"
)

// RunConfig is everything one run needs. It is read from YAML and then
// overridden by any flag the user set explicitly.
type RunConfig struct {
	Particles       int             `yaml:"particles"`
	Distribution    string          `yaml:"distribution"`
	Seed            int64           `yaml:"seed"`
	PEs             int             `yaml:"pes"`
	Branching       int             `yaml:"branching"`
	LeafSize        int             `yaml:"leaf_size"`
	SubtreeSize     int             `yaml:"subtree_size"`
	ShareDepth      int             `yaml:"share_depth"`
	ReplyDepth      int             `yaml:"reply_depth"`
	Iterations      int             `yaml:"iterations"`
	Mode            string          `yaml:"mode"`
	Visitor         string          `yaml:"visitor"`
	Theta           float64         `yaml:"theta"`
	CountEdges      []float64       `yaml:"count_edges"` // distance bin edges of the count visitor
	Runtime         string          `yaml:"runtime"`
	Latency         cluster.Latency `yaml:"latency"`
	LookupCacheSize int             `yaml:"lookup_cache_size"`
	EncodeMessages  bool            `yaml:"encode_messages"`
	Trace           string          `yaml:"trace"`
}

// Runtime names.
const (
	RuntimeEvent      = "event"
	RuntimeConcurrent = "concurrent"
)

// Visitor names.
const (
	VisitorCount   = "count"
	VisitorGravity = "gravity"
)

// DefaultRunConfig returns the configuration used when nothing is given.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Particles:       4096,
		Distribution:    string(decomp.Plummer),
		Seed:            42,
		PEs:             4,
		Branching:       int(tree.Octree),
		LeafSize:        16,
		SubtreeSize:     512,
		ShareDepth:      1,
		ReplyDepth:      cluster.DefaultReplyDepth,
		Iterations:      1,
		Mode:            traverse.TopDown.String(),
		Visitor:         VisitorGravity,
		Theta:           0.7,
		CountEdges:      []float64{0, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, math.Inf(1)},
		Runtime:         RuntimeEvent,
		Latency:         cluster.Latency{Base: 100, Jitter: 20, Service: 10},
		LookupCacheSize: 1024,
		Trace:           string(trace.LevelNone),
	}
}

// LoadRunConfig reads a YAML config on top of the defaults. Unknown fields
// are errors.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c RunConfig) Validate() error {
	var errs *multierror.Error
	if c.Particles < 1 {
		errs = multierror.Append(errs, fmt.Errorf("particles must be positive, got %d", c.Particles))
	}
	if c.Distribution != string(decomp.Plummer) && c.Distribution != string(decomp.Uniform) {
		errs = multierror.Append(errs, fmt.Errorf("distribution must be plummer or uniform, got %q", c.Distribution))
	}
	if c.PEs < 1 {
		errs = multierror.Append(errs, fmt.Errorf("pes must be positive, got %d", c.PEs))
	}
	if !tree.Branching(c.Branching).Valid() {
		errs = multierror.Append(errs, fmt.Errorf("branching must be 2 or 8, got %d", c.Branching))
	}
	if c.LeafSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("leaf_size must be positive, got %d", c.LeafSize))
	}
	if c.SubtreeSize < c.LeafSize {
		errs = multierror.Append(errs, fmt.Errorf("subtree_size %d is below leaf_size %d", c.SubtreeSize, c.LeafSize))
	}
	if c.ShareDepth < 0 {
		errs = multierror.Append(errs, fmt.Errorf("share_depth must not be negative, got %d", c.ShareDepth))
	}
	if c.ReplyDepth < 0 {
		errs = multierror.Append(errs, fmt.Errorf("reply_depth must not be negative, got %d", c.ReplyDepth))
	}
	if c.Iterations < 1 {
		errs = multierror.Append(errs, fmt.Errorf("iterations must be positive, got %d", c.Iterations))
	}
	if _, err := traverse.ParseMode(c.Mode); err != nil {
		errs = multierror.Append(errs, err)
	}
	switch c.Visitor {
	case VisitorGravity:
		if c.Theta <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("theta must be positive, got %g", c.Theta))
		}
	case VisitorCount:
		if len(c.CountEdges) < 2 {
			errs = multierror.Append(errs, fmt.Errorf("count_edges needs at least two edges, got %d", len(c.CountEdges)))
		}
		for i := 1; i < len(c.CountEdges); i++ {
			if c.CountEdges[i] <= c.CountEdges[i-1] {
				errs = multierror.Append(errs, fmt.Errorf("count_edges must ascend, %g follows %g", c.CountEdges[i], c.CountEdges[i-1]))
				break
			}
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("visitor must be count or gravity, got %q", c.Visitor))
	}
	if c.Runtime != RuntimeEvent && c.Runtime != RuntimeConcurrent {
		errs = multierror.Append(errs, fmt.Errorf("runtime must be event or concurrent, got %q", c.Runtime))
	}
	if c.Latency.Base < 0 || c.Latency.Jitter < 0 || c.Latency.Service < 0 {
		errs = multierror.Append(errs, fmt.Errorf("latency values must not be negative, got %+v", c.Latency))
	}
	if c.LookupCacheSize < 0 {
		errs = multierror.Append(errs, fmt.Errorf("lookup_cache_size must not be negative, got %d", c.LookupCacheSize))
	}
	if !trace.IsValidLevel(c.Trace) {
		errs = multierror.Append(errs, fmt.Errorf("trace must be none or fetches, got %q", c.Trace))
	}
	return errs.ErrorOrNil()
}

func (c RunConfig) decompConfig() decomp.Config {
	return decomp.Config{
		Branching:   tree.Branching(c.Branching),
		LeafSize:    c.LeafSize,
		SubtreeSize: c.SubtreeSize,
		PEs:         c.PEs,
		ShareDepth:  c.ShareDepth,
	}
}
