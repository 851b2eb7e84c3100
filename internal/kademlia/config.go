package kademlia

import "time"

// Defaults from spec.md §4, §4.5.
const (
	// BucketSize is K: the replication factor and bucket capacity.
	BucketSize = 20

	// ReplacementCacheSize bounds the per-bucket replacement cache
	// (SPEC_FULL.md §12, supplemented from original_source's
	// RoutingConfig::bucket_replacement_size).
	ReplacementCacheSize = 10

	// Alpha is the lookup parallelism factor.
	Alpha = 3

	// BucketRefreshInterval is T_refresh.
	BucketRefreshInterval = 1 * time.Hour

	// DefaultRPCTimeout is the per-RPC deadline used by a lookup unless
	// overridden.
	DefaultRPCTimeout = 5 * time.Second
)

// Config tunes a RoutingTable and the lookups run against it. Follows the
// teacher's DefaultConfig()+functional-options idiom
// (internal/discovery/dht/config.go).
type Config struct {
	BucketSize            int
	ReplacementCacheSize  int
	Alpha                 int
	RefreshInterval       time.Duration
	RPCTimeout            time.Duration
	MaxConcurrentLookups  int
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		BucketSize:           BucketSize,
		ReplacementCacheSize: ReplacementCacheSize,
		Alpha:                Alpha,
		RefreshInterval:      BucketRefreshInterval,
		RPCTimeout:           DefaultRPCTimeout,
		MaxConcurrentLookups: 32,
	}
}

// Option mutates a Config at construction time.
type Option func(*Config)

// WithAlpha overrides the lookup parallelism factor.
func WithAlpha(alpha int) Option {
	return func(c *Config) { c.Alpha = alpha }
}

// WithBucketSize overrides K.
func WithBucketSize(k int) Option {
	return func(c *Config) { c.BucketSize = k }
}

// WithRefreshInterval overrides T_refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Config) { c.RefreshInterval = d }
}

// WithRPCTimeout overrides the per-RPC deadline used by lookups.
func WithRPCTimeout(d time.Duration) Option {
	return func(c *Config) { c.RPCTimeout = d }
}

// WithMaxConcurrentLookups overrides the global concurrent-lookup cap.
func WithMaxConcurrentLookups(n int) Option {
	return func(c *Config) { c.MaxConcurrentLookups = n }
}
