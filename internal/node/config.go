package node

import (
	"time"

	"github.com/SnowyCoder/wdht/internal/kademlia"
	"github.com/SnowyCoder/wdht/internal/metrics"
)

// Defaults from spec.md §4.6, §5.
const (
	GCInterval        = 30 * time.Second
	RepublishInterval = 60 * time.Second
	RefreshInterval   = 1 * time.Hour
	PingInterval      = 15 * time.Second

	// MaxPeers is the hard cap on open channels before LRU eviction kicks
	// in, independent of k-bucket membership.
	MaxPeers = 256

	// MaxConcurrentLookups bounds the number of iterative lookups running
	// at once across the whole node.
	MaxConcurrentLookups = 32

	// MaxPendingPerChannel throttles a channel once this many inbound
	// RPCs are outstanding on it.
	MaxPendingPerChannel = 64

	// BootstrapTimeout bounds how long Bootstrap waits for any seed to
	// answer before reporting BootstrapFailed.
	BootstrapTimeout = 15 * time.Second
)

// Config tunes one KademliaNode. Follows the teacher's
// DefaultConfig()+ConfigOption idiom (internal/discovery/dht/config.go).
type Config struct {
	GCInterval        time.Duration
	RepublishInterval time.Duration
	RefreshInterval   time.Duration
	PingInterval      time.Duration

	MaxPeers              int
	MaxConcurrentLookups  int
	MaxPendingPerChannel  int
	BootstrapTimeout      time.Duration

	Kademlia *kademlia.Config

	// Metrics is optional; nil means every recording call is a no-op
	// (SPEC_FULL.md §11: metrics are injected and never on the hot path).
	Metrics *metrics.Metrics
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		GCInterval:           GCInterval,
		RepublishInterval:    RepublishInterval,
		RefreshInterval:      RefreshInterval,
		PingInterval:         PingInterval,
		MaxPeers:             MaxPeers,
		MaxConcurrentLookups: MaxConcurrentLookups,
		MaxPendingPerChannel: MaxPendingPerChannel,
		BootstrapTimeout:     BootstrapTimeout,
		Kademlia:             kademlia.DefaultConfig(),
	}
}

// Validate checks that every interval/cap is usable, matching the
// teacher's Config.Validate contract.
func (c *Config) Validate() error {
	switch {
	case c.GCInterval <= 0:
		return &NodeError{Op: "Validate", Message: "gc interval must be positive"}
	case c.RepublishInterval <= 0:
		return &NodeError{Op: "Validate", Message: "republish interval must be positive"}
	case c.RefreshInterval <= 0:
		return &NodeError{Op: "Validate", Message: "refresh interval must be positive"}
	case c.PingInterval <= 0:
		return &NodeError{Op: "Validate", Message: "ping interval must be positive"}
	case c.MaxPeers <= 0:
		return &NodeError{Op: "Validate", Message: "max peers must be positive"}
	case c.MaxConcurrentLookups <= 0:
		return &NodeError{Op: "Validate", Message: "max concurrent lookups must be positive"}
	case c.MaxPendingPerChannel <= 0:
		return &NodeError{Op: "Validate", Message: "max pending per channel must be positive"}
	case c.BootstrapTimeout <= 0:
		return &NodeError{Op: "Validate", Message: "bootstrap timeout must be positive"}
	}
	return nil
}

// Option mutates a Config at construction time.
type Option func(*Config)

func WithGCInterval(d time.Duration) Option        { return func(c *Config) { c.GCInterval = d } }
func WithRepublishInterval(d time.Duration) Option { return func(c *Config) { c.RepublishInterval = d } }
func WithRefreshInterval(d time.Duration) Option   { return func(c *Config) { c.RefreshInterval = d } }
func WithPingInterval(d time.Duration) Option      { return func(c *Config) { c.PingInterval = d } }
func WithMaxPeers(n int) Option                    { return func(c *Config) { c.MaxPeers = n } }
func WithMaxConcurrentLookups(n int) Option         { return func(c *Config) { c.MaxConcurrentLookups = n } }
func WithBootstrapTimeout(d time.Duration) Option   { return func(c *Config) { c.BootstrapTimeout = d } }
func WithKademliaConfig(kc *kademlia.Config) Option { return func(c *Config) { c.Kademlia = kc } }
func WithMetrics(m *metrics.Metrics) Option         { return func(c *Config) { c.Metrics = m } }
