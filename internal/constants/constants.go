package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 1000

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 2000

	// DefaultQueryTimeout bounds a single search request
	DefaultQueryTimeout = 30 * time.Second
)

// API Paths
const (
	DefaultHealthPath  = "/health"
	DefaultVersionPath = "/version"
	DefaultMetricsPath = "/metrics"
	DefaultFirstPath   = "/v1/first"
)

// Bloom filter and ladder defaults
const (
	// DefaultFilterBits is the default per-block filter size in bits
	DefaultFilterBits uint32 = 1024

	// DefaultHashFunctions is the default number of probes per element
	DefaultHashFunctions uint8 = 3

	// DefaultMaxLevels is the default ladder depth; the widest window spans 2^(n-1) blocks
	DefaultMaxLevels = 16

	// DefaultFilterMode selects which elements go into a block filter
	DefaultFilterMode = "default"
)

// Query defaults
const (
	// DefaultSaturationThreshold is the fill ratio above which a window is not used to jump
	DefaultSaturationThreshold = 0.5

	// DefaultBenchExecutions is the number of timed runs per benchmarked query
	DefaultBenchExecutions = 5
)

// Storage defaults
const (
	// DefaultBackend is the default key-value engine
	DefaultBackend = "pebble"

	// DefaultIndexPath is the default index database directory
	DefaultIndexPath = "./data/index"

	// DefaultStoragePath is the default event storage database directory
	DefaultStoragePath = "./data/storage"

	// DefaultCacheMB is the default block cache size in MB
	DefaultCacheMB = 128

	// DefaultIndexCacheSize is the default number of decoded records kept in memory
	DefaultIndexCacheSize = 4096
)
