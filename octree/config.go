package octree

import "math"

// LockMode selects the synchronisation discipline the node-block allocator
// and tree skeleton use while splitting on descent or deallocating on
// prune.
type LockMode int

const (
	// LockNone means the map is single-writer; no synchronisation at all.
	// This is the zero-overhead default.
	LockNone LockMode = iota
	// LockDepth takes one test-and-set flag per depth before mutating any
	// block at that depth.
	LockDepth
	// LockNode takes one test-and-set flag per inner-node slot.
	LockNode
)

// Aggregation selects how an inner slot's payload is recomputed from its
// eight children during propagation.
type Aggregation int

const (
	AggregationMax Aggregation = iota
	AggregationMin
	AggregationMean
)

const (
	minDepthLevels = 3
	// maxDepthLevels is bounded by the packed Code layout (depth in the
	// low 5 bits, Morton interleave in the remaining 59): see code.go and
	// DESIGN.md for the arithmetic that forces this number below the
	// spec's nominal 22.
	maxDepthLevels = maxBitsPerAxis + 1

	defaultOccupiedThres = 0.5
	defaultFreeThres     = 0.5
	defaultClampingMin   = 0.1192
	defaultClampingMax   = 0.971
	defaultProbHit       = 0.85
	defaultProbMiss      = 0.4
)

// Config is the validated, immutable configuration a Map is built from.
// Construct it with New(opts...); the zero value is not meant to be used
// directly.
type Config struct {
	LeafSize       float64
	DepthLevels    uint8
	AutomaticPrune bool
	LockMode       LockMode
	ReuseNodes     bool
	TrackNodes     bool
	CountNodes     bool

	OccupiedThres float64
	FreeThres     float64
	ClampingMin   float64
	ClampingMax   float64
	ProbHit       float64
	ProbMiss      float64
	Aggregation   Aggregation

	Logger Logger
}

// Option configures a Map at construction time.
type Option func(*Config)

// WithLeafSize sets the edge length of a depth-0 voxel. Required, must be
// positive.
func WithLeafSize(size float64) Option {
	return func(c *Config) { c.LeafSize = size }
}

// WithDepthLevels sets the number of levels in the tree, including the
// root. Must be in [3, 20].
func WithDepthLevels(d uint8) Option {
	return func(c *Config) { c.DepthLevels = d }
}

// WithAutomaticPrune enables pruning collapsible subtrees during every
// propagateModified call.
func WithAutomaticPrune(enabled bool) Option {
	return func(c *Config) { c.AutomaticPrune = enabled }
}

// WithLockMode selects the allocator/skeleton synchronisation discipline.
func WithLockMode(mode LockMode) Option {
	return func(c *Config) { c.LockMode = mode }
}

// WithReuseNodes controls whether pruned blocks return to the allocator's
// free pool (true, amortised reuse) or are discarded (false, lower
// memory).
func WithReuseNodes(reuse bool) Option {
	return func(c *Config) { c.ReuseNodes = reuse }
}

// WithTrackNodes sets Config.TrackNodes. The setting is only stored: the
// map keeps no per-slot existence bits and validates no handles.
func WithTrackNodes(track bool) Option {
	return func(c *Config) { c.TrackNodes = track }
}

// WithCountNodes maintains the allocator's informational statistics
// counters.
func WithCountNodes(count bool) Option {
	return func(c *Config) { c.CountNodes = count }
}

// WithOccupancyThresholds sets the free/occupied classification
// thresholds, as probabilities in (0, 1).
func WithOccupancyThresholds(free, occupied float64) Option {
	return func(c *Config) {
		c.FreeThres = free
		c.OccupiedThres = occupied
	}
}

// WithClampingThresholds sets the probability range log-odds are clamped
// to.
func WithClampingThresholds(min, max float64) Option {
	return func(c *Config) {
		c.ClampingMin = min
		c.ClampingMax = max
	}
}

// WithHitMissProbabilities sets the probabilities applied per occupied /
// free observation.
func WithHitMissProbabilities(hit, miss float64) Option {
	return func(c *Config) {
		c.ProbHit = hit
		c.ProbMiss = miss
	}
}

// WithAggregation selects the upward-propagation reduction.
func WithAggregation(a Aggregation) Option {
	return func(c *Config) { c.Aggregation = a }
}

// WithLogger installs the Logger the map reports allocator, propagation
// and serialization events to. Defaults to NoopLogger().
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func defaultConfig() Config {
	return Config{
		DepthLevels:   16,
		LockMode:      LockNone,
		ReuseNodes:    true,
		CountNodes:    true,
		OccupiedThres: defaultOccupiedThres,
		FreeThres:     defaultFreeThres,
		ClampingMin:   defaultClampingMin,
		ClampingMax:   defaultClampingMax,
		ProbHit:       defaultProbHit,
		ProbMiss:      defaultProbMiss,
		Aggregation:   AggregationMax,
		Logger:        NoopLogger(),
	}
}

func newConfig(opts ...Option) (Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.LeafSize <= 0 {
		return cfg, newError(InvalidArgument, "leaf_size must be positive, got %v", cfg.LeafSize)
	}
	if cfg.DepthLevels < minDepthLevels || cfg.DepthLevels > maxDepthLevels {
		return cfg, newError(InvalidDepth, "depth_levels must be in [%d, %d], got %d",
			minDepthLevels, maxDepthLevels, cfg.DepthLevels)
	}
	if cfg.Logger == nil {
		cfg.Logger = NoopLogger()
	}
	if cfg.ClampingMin <= 0 || cfg.ClampingMax >= 1 || cfg.ClampingMin >= cfg.ClampingMax {
		return cfg, newError(InvalidArgument, "clamping thresholds must satisfy 0 < min < max < 1, got [%v, %v]",
			cfg.ClampingMin, cfg.ClampingMax)
	}

	return cfg, nil
}

// logit is the log-odds of probability p.
func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
