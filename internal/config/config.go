package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/skipindex-go/internal/constants"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for skipindex
type Config struct {
	Index   StoreConfig `yaml:"index"`
	Storage StoreConfig `yaml:"storage"`
	Bloom   BloomConfig `yaml:"bloom"`
	Query   QueryConfig `yaml:"query"`
	Log     LogConfig   `yaml:"log"`
	API     APIConfig   `yaml:"api"`
}

// StoreConfig holds key-value database configuration for the index or the event storage
type StoreConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	Cache    int    `yaml:"cache"`
	ReadOnly bool   `yaml:"readonly"`
	InMemory bool   `yaml:"in_memory"`
}

// BloomConfig holds filter shape and ladder configuration. Zero values adopt
// the parameters stored with an existing index.
type BloomConfig struct {
	MBits     uint32 `yaml:"m_bits"`
	K         uint8  `yaml:"k"`
	MaxLevels int    `yaml:"max_levels"`
	Mode      string `yaml:"mode"`
	CacheSize int    `yaml:"cache_size"`
}

// QueryConfig holds search configuration
type QueryConfig struct {
	SaturationThreshold float64       `yaml:"saturation_threshold"`
	MaxLevel            int           `yaml:"max_level"`
	Timeout             time.Duration `yaml:"timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	EnableMetrics      bool          `yaml:"enable_metrics"`

	// APIKeys maps accepted keys to labels; empty disables authentication
	APIKeys map[string]string `yaml:"api_keys"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// Store defaults
	c.Index.setDefaults(constants.DefaultIndexPath)
	c.Storage.setDefaults(constants.DefaultStoragePath)

	// Bloom defaults
	if c.Bloom.Mode == "" {
		c.Bloom.Mode = constants.DefaultFilterMode
	}
	if c.Bloom.CacheSize == 0 {
		c.Bloom.CacheSize = constants.DefaultIndexCacheSize
	}

	// Query defaults
	if c.Query.SaturationThreshold == 0 {
		c.Query.SaturationThreshold = constants.DefaultSaturationThreshold
	}
	if c.Query.Timeout == 0 {
		c.Query.Timeout = constants.DefaultQueryTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = constants.DefaultReadTimeout
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = constants.DefaultWriteTimeout
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = constants.DefaultIdleTimeout
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
}

func (s *StoreConfig) setDefaults(path string) {
	if s.Backend == "" {
		s.Backend = constants.DefaultBackend
	}
	if s.Path == "" && !s.InMemory {
		s.Path = path
	}
	if s.Cache == 0 {
		s.Cache = constants.DefaultCacheMB
	}
}

// ApplyBloomDefaults fills the filter shape for a new index
func (c *Config) ApplyBloomDefaults() {
	if c.Bloom.MBits == 0 {
		c.Bloom.MBits = constants.DefaultFilterBits
	}
	if c.Bloom.K == 0 {
		c.Bloom.K = constants.DefaultHashFunctions
	}
	if c.Bloom.MaxLevels == 0 {
		c.Bloom.MaxLevels = constants.DefaultMaxLevels
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Store configuration
	if err := c.Index.loadFromEnv("SKIPINDEX_INDEX"); err != nil {
		return err
	}
	if err := c.Storage.loadFromEnv("SKIPINDEX_STORAGE"); err != nil {
		return err
	}

	// Bloom configuration
	if mBits := os.Getenv("SKIPINDEX_BLOOM_M_BITS"); mBits != "" {
		val, err := strconv.ParseUint(mBits, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_BLOOM_M_BITS: %w", err)
		}
		c.Bloom.MBits = uint32(val)
	}
	if k := os.Getenv("SKIPINDEX_BLOOM_K"); k != "" {
		val, err := strconv.ParseUint(k, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_BLOOM_K: %w", err)
		}
		c.Bloom.K = uint8(val)
	}
	if levels := os.Getenv("SKIPINDEX_BLOOM_MAX_LEVELS"); levels != "" {
		val, err := strconv.Atoi(levels)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_BLOOM_MAX_LEVELS: %w", err)
		}
		c.Bloom.MaxLevels = val
	}
	if mode := os.Getenv("SKIPINDEX_BLOOM_MODE"); mode != "" {
		c.Bloom.Mode = mode
	}
	if size := os.Getenv("SKIPINDEX_BLOOM_CACHE_SIZE"); size != "" {
		val, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_BLOOM_CACHE_SIZE: %w", err)
		}
		c.Bloom.CacheSize = val
	}

	// Query configuration
	if threshold := os.Getenv("SKIPINDEX_QUERY_SATURATION_THRESHOLD"); threshold != "" {
		val, err := strconv.ParseFloat(threshold, 64)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_QUERY_SATURATION_THRESHOLD: %w", err)
		}
		c.Query.SaturationThreshold = val
	}
	if level := os.Getenv("SKIPINDEX_QUERY_MAX_LEVEL"); level != "" {
		val, err := strconv.Atoi(level)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_QUERY_MAX_LEVEL: %w", err)
		}
		c.Query.MaxLevel = val
	}
	if timeout := os.Getenv("SKIPINDEX_QUERY_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_QUERY_TIMEOUT: %w", err)
		}
		c.Query.Timeout = duration
	}

	// Log configuration
	if level := os.Getenv("SKIPINDEX_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("SKIPINDEX_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// API configuration
	if host := os.Getenv("SKIPINDEX_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("SKIPINDEX_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_API_PORT: %w", err)
		}
		c.API.Port = val
	}
	if rate := os.Getenv("SKIPINDEX_API_RATE_LIMIT"); rate != "" {
		val, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_API_RATE_LIMIT: %w", err)
		}
		c.API.RateLimitPerSecond = val
	}
	if burst := os.Getenv("SKIPINDEX_API_RATE_BURST"); burst != "" {
		val, err := strconv.Atoi(burst)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_API_RATE_BURST: %w", err)
		}
		c.API.RateLimitBurst = val
	}
	if metrics := os.Getenv("SKIPINDEX_API_ENABLE_METRICS"); metrics != "" {
		val, err := strconv.ParseBool(metrics)
		if err != nil {
			return fmt.Errorf("invalid SKIPINDEX_API_ENABLE_METRICS: %w", err)
		}
		c.API.EnableMetrics = val
	}

	return nil
}

func (s *StoreConfig) loadFromEnv(prefix string) error {
	if backend := os.Getenv(prefix + "_BACKEND"); backend != "" {
		s.Backend = strings.ToLower(backend)
	}
	if path := os.Getenv(prefix + "_PATH"); path != "" {
		s.Path = path
	}
	if cache := os.Getenv(prefix + "_CACHE"); cache != "" {
		val, err := strconv.Atoi(cache)
		if err != nil {
			return fmt.Errorf("invalid %s_CACHE: %w", prefix, err)
		}
		s.Cache = val
	}
	if readonly := os.Getenv(prefix + "_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid %s_READONLY: %w", prefix, err)
		}
		s.ReadOnly = val
	}
	if inMemory := os.Getenv(prefix + "_IN_MEMORY"); inMemory != "" {
		val, err := strconv.ParseBool(inMemory)
		if err != nil {
			return fmt.Errorf("invalid %s_IN_MEMORY: %w", prefix, err)
		}
		s.InMemory = val
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate store configuration
	if err := c.Index.validate("index"); err != nil {
		return err
	}
	if err := c.Storage.validate("storage"); err != nil {
		return err
	}

	// Validate bloom configuration
	if c.Bloom.MBits%64 != 0 {
		return fmt.Errorf("bloom m_bits must be a multiple of 64, got %d", c.Bloom.MBits)
	}
	if c.Bloom.K > 8 {
		return fmt.Errorf("bloom k cannot exceed 8, got %d", c.Bloom.K)
	}
	if c.Bloom.MaxLevels < 0 || c.Bloom.MaxLevels > 32 {
		return fmt.Errorf("bloom max_levels must be between 0 and 32, got %d", c.Bloom.MaxLevels)
	}
	validModes := map[string]bool{
		"default":  true,
		"extended": true,
	}
	if !validModes[strings.ToLower(c.Bloom.Mode)] {
		return fmt.Errorf("invalid bloom mode %q, must be one of: default, extended", c.Bloom.Mode)
	}
	if c.Bloom.CacheSize < 0 {
		return fmt.Errorf("bloom cache size cannot be negative")
	}

	// Validate query configuration
	if c.Query.SaturationThreshold <= 0 || c.Query.SaturationThreshold > 1 {
		return fmt.Errorf("saturation threshold must be in (0, 1], got %v", c.Query.SaturationThreshold)
	}
	if c.Query.MaxLevel < 0 {
		return fmt.Errorf("query max level cannot be negative")
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate API configuration
	if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
		return fmt.Errorf("invalid API port %d, must be between %d and %d", c.API.Port, constants.MinPort, constants.MaxPort)
	}
	if c.API.RateLimitPerSecond < 0 {
		return fmt.Errorf("API rate limit cannot be negative")
	}
	if c.API.RateLimitBurst < 0 {
		return fmt.Errorf("API rate limit burst cannot be negative")
	}

	return nil
}

func (s *StoreConfig) validate(name string) error {
	validBackends := map[string]bool{
		"pebble":  true,
		"leveldb": true,
	}
	if !validBackends[s.Backend] {
		return fmt.Errorf("invalid %s backend %q, must be one of: pebble, leveldb", name, s.Backend)
	}
	if s.Path == "" && !s.InMemory {
		return fmt.Errorf("%s path is required", name)
	}
	if s.InMemory && s.ReadOnly {
		return fmt.Errorf("%s cannot be both in-memory and read-only", name)
	}
	if s.Cache < 0 {
		return fmt.Errorf("%s cache size cannot be negative", name)
	}
	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
