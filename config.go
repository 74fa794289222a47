package chorus

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/chorus/internal/lavalink"
	"github.com/arloliu/chorus/strategy"
)

// Store backends accepted by StoreConfig.Backend.
const (
	StoreNATS  = "nats"
	StoreRedis = "redis"
)

// BalancingConfig selects and tunes the guild placement strategy.
type BalancingConfig struct {
	// Strategy is "priority" (default), "least-loaded" or "consistent-hash".
	Strategy string `yaml:"strategy"`

	// MaxSessions is the per-worker session cap. Zero means unlimited.
	MaxSessions int `yaml:"maxSessions"`

	// Preference lists worker IDs in the order new guilds should favour them.
	// Workers missing from the list come after listed ones, sorted by ID.
	Preference []string `yaml:"preference"`

	// VirtualNodes and HashSeed tune the consistent-hash ring.
	VirtualNodes int    `yaml:"virtualNodes"`
	HashSeed     uint64 `yaml:"hashSeed"`
}

// ResumeConfig controls session resumption at startup.
type ResumeConfig struct {
	// Disabled skips resumption entirely; saved snapshots stay untouched.
	Disabled bool `yaml:"disabled"`

	// BatchSize is the number of tracks re-resolved concurrently.
	BatchSize int `yaml:"batchSize"`

	// SettleDelay is how long playback runs before the saved position is restored.
	SettleDelay time.Duration `yaml:"settleDelay"`

	// ConnectTimeout bounds the wait for the first audio node.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// KVBucketConfig configures NATS JetStream KV bucket names.
type KVBucketConfig struct {
	// StableIDBucket is the bucket name for worker ID leases.
	StableIDBucket string `yaml:"stableIdBucket"`

	// ElectionBucket is the bucket name for the primary lease.
	ElectionBucket string `yaml:"electionBucket"`

	// HeartbeatBucket is the bucket name for worker heartbeats.
	HeartbeatBucket string `yaml:"heartbeatBucket"`

	// AssignmentBucket is the bucket name for guild assignments.
	AssignmentBucket string `yaml:"assignmentBucket"`

	// SnapshotBucket is the bucket name for session snapshots.
	SnapshotBucket string `yaml:"snapshotBucket"`

	// MemoryStorage keeps buckets in memory instead of on disk (tests, dev).
	MemoryStorage bool `yaml:"memoryStorage"`
}

// RedisConfig locates the Redis server used when StoreConfig.Backend is "redis".
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// StoreConfig selects where heartbeats, assignments and snapshots live.
//
// Worker ID and primary leases always use NATS KV.
type StoreConfig struct {
	// Backend is "nats" (default) or "redis".
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`
}

// LavalinkNode is one audio node.
type LavalinkNode struct {
	ID       string `yaml:"id"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Secure   bool   `yaml:"secure"`
}

// LavalinkConfig configures the audio backend client.
type LavalinkConfig struct {
	Nodes             []LavalinkNode `yaml:"nodes"`
	SearchPrefix      string         `yaml:"searchPrefix"`
	RequestsPerSecond float64        `yaml:"requestsPerSecond"`
	Burst             int            `yaml:"burst"`
	RetryAmount       int            `yaml:"retryAmount"`
	RetryDelay        time.Duration  `yaml:"retryDelay"`
	MaxRetryDelay     time.Duration  `yaml:"maxRetryDelay"`
}

// ClientConfig converts the node list to a lavalink.Config for the given bot user.
//
// Parameters:
//   - userID: The bot's client (application) ID
//
// Returns:
//   - lavalink.Config: Client configuration; unset fields take lavalink defaults
func (c LavalinkConfig) ClientConfig(userID string) lavalink.Config {
	nodes := make([]lavalink.NodeConfig, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		nodes = append(nodes, lavalink.NodeConfig{
			ID:       n.ID,
			Host:     n.Host,
			Port:     n.Port,
			Password: n.Password,
			Secure:   n.Secure,
		})
	}

	return lavalink.Config{
		Nodes:             nodes,
		UserID:            userID,
		SearchPrefix:      c.SearchPrefix,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		RetryAmount:       c.RetryAmount,
		RetryDelay:        c.RetryDelay,
		MaxRetryDelay:     c.MaxRetryDelay,
	}
}

// LoggingConfig selects the logger used by the worker binary.
type LoggingConfig struct {
	// Backend is "zap" (default) or "slog".
	Backend string `yaml:"backend"`

	// Level is "debug", "info" (default), "warn" or "error".
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// Config is the configuration for a Worker.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// WorkerID is this worker's stable, configured identity (e.g. "bot-1").
	// Two processes must never run with the same WorkerID.
	WorkerID string `yaml:"workerId"`

	// DisplayName is shown by the cluster status surface.
	DisplayName string `yaml:"displayName"`

	// ClientID is the chat client (application) ID this worker logs in as.
	ClientID string `yaml:"clientId"`

	// IsPrimary lets this worker contend for the primary role, which runs
	// the stale assignment sweep.
	IsPrimary bool `yaml:"isPrimary"`

	// HeartbeatInterval is how often the worker publishes its heartbeat.
	// Must stay well below the 60s liveness window.
	// Recommended: 15 seconds.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// WorkerIDTTL is how long the worker ID lease survives without renewal.
	// Renewed every WorkerIDTTL/3.
	WorkerIDTTL time.Duration `yaml:"workerIdTtl"`

	// PrimaryLeaseTTL is how long the primary lease survives without renewal.
	// Renewed every PrimaryLeaseTTL/3.
	PrimaryLeaseTTL time.Duration `yaml:"primaryLeaseTtl"`

	// SweepInterval is how often the primary deactivates assignments owned by dead workers.
	SweepInterval time.Duration `yaml:"sweepInterval"`

	// DefaultVolume is the volume of new sessions (0-150).
	DefaultVolume int `yaml:"defaultVolume"`

	// CommandTimeout bounds one command's execution.
	CommandTimeout time.Duration `yaml:"commandTimeout"`

	// GatewayTimeout bounds one gateway request.
	GatewayTimeout time.Duration `yaml:"gatewayTimeout"`

	// OperationTimeout is the timeout for store operations outside a request.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// StartupTimeout is the maximum time Start may take (resumption excluded).
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// APIAddr is the operator HTTP listen address; empty disables the server.
	APIAddr string `yaml:"apiAddr"`

	Balancing BalancingConfig `yaml:"balancing"`
	Resume    ResumeConfig    `yaml:"resume"`
	Store     StoreConfig     `yaml:"store"`
	KVBuckets KVBucketConfig  `yaml:"kvBuckets"`
	Lavalink  LavalinkConfig  `yaml:"lavalink"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// WorkerID and ClientID have no default and must be set.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 15 * time.Second,
		WorkerIDTTL:       30 * time.Second,
		PrimaryLeaseTTL:   30 * time.Second,
		SweepInterval:     time.Minute,
		DefaultVolume:     80,
		CommandTimeout:    15 * time.Second,
		GatewayTimeout:    5 * time.Second,
		OperationTimeout:  10 * time.Second,
		StartupTimeout:    30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Balancing: BalancingConfig{
			Strategy: strategy.NamePriority,
		},
		Resume: ResumeConfig{
			BatchSize:      5,
			SettleDelay:    500 * time.Millisecond,
			ConnectTimeout: 2 * time.Minute,
		},
		Store: StoreConfig{
			Backend: StoreNATS,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "chorus:",
			},
		},
		KVBuckets: KVBucketConfig{
			StableIDBucket:   "chorus-stableid",
			ElectionBucket:   "chorus-election",
			HeartbeatBucket:  "chorus-heartbeat",
			AssignmentBucket: "chorus-assignment",
			SnapshotBucket:   "chorus-snapshot",
		},
		Logging: LoggingConfig{
			Backend: "zap",
			Level:   "info",
			Format:  "json",
		},
	}
}

// SetDefaults fills zero fields of cfg from DefaultConfig.
//
// Parameters:
//   - cfg: Configuration to complete in place
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.WorkerID
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.WorkerIDTTL == 0 {
		cfg.WorkerIDTTL = defaults.WorkerIDTTL
	}
	if cfg.PrimaryLeaseTTL == 0 {
		cfg.PrimaryLeaseTTL = defaults.PrimaryLeaseTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.DefaultVolume == 0 {
		cfg.DefaultVolume = defaults.DefaultVolume
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaults.CommandTimeout
	}
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = defaults.GatewayTimeout
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.Balancing.Strategy == "" {
		cfg.Balancing.Strategy = defaults.Balancing.Strategy
	}
	if cfg.Resume.BatchSize == 0 {
		cfg.Resume.BatchSize = defaults.Resume.BatchSize
	}
	if cfg.Resume.SettleDelay == 0 {
		cfg.Resume.SettleDelay = defaults.Resume.SettleDelay
	}
	if cfg.Resume.ConnectTimeout == 0 {
		cfg.Resume.ConnectTimeout = defaults.Resume.ConnectTimeout
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaults.Store.Backend
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = defaults.Store.Redis.Addr
	}
	if cfg.Store.Redis.KeyPrefix == "" {
		cfg.Store.Redis.KeyPrefix = defaults.Store.Redis.KeyPrefix
	}
	if cfg.KVBuckets.StableIDBucket == "" {
		cfg.KVBuckets.StableIDBucket = defaults.KVBuckets.StableIDBucket
	}
	if cfg.KVBuckets.ElectionBucket == "" {
		cfg.KVBuckets.ElectionBucket = defaults.KVBuckets.ElectionBucket
	}
	if cfg.KVBuckets.HeartbeatBucket == "" {
		cfg.KVBuckets.HeartbeatBucket = defaults.KVBuckets.HeartbeatBucket
	}
	if cfg.KVBuckets.AssignmentBucket == "" {
		cfg.KVBuckets.AssignmentBucket = defaults.KVBuckets.AssignmentBucket
	}
	if cfg.KVBuckets.SnapshotBucket == "" {
		cfg.KVBuckets.SnapshotBucket = defaults.KVBuckets.SnapshotBucket
	}
	if cfg.Logging.Backend == "" {
		cfg.Logging.Backend = defaults.Logging.Backend
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - WorkerID and ClientID are set
//   - HeartbeatInterval <= LivenessWindow/2 (a worker survives one missed beat)
//   - WorkerIDTTL and PrimaryLeaseTTL >= 3s (renewal runs at TTL/3)
//   - DefaultVolume within 0-150
//   - Store.Backend is "nats" or "redis"
//   - Balancing.Strategy is a known strategy name
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.WorkerID == "" {
		return fmt.Errorf("%w: workerId is required", ErrInvalidConfig)
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("%w: clientId is required", ErrInvalidConfig)
	}
	if cfg.HeartbeatInterval <= 0 || cfg.HeartbeatInterval > LivenessWindow/2 {
		return fmt.Errorf("%w: heartbeatInterval (%v) must be in (0, %v]",
			ErrInvalidConfig, cfg.HeartbeatInterval, LivenessWindow/2)
	}
	if cfg.WorkerIDTTL < 3*time.Second {
		return fmt.Errorf("%w: workerIdTtl (%v) must be >= 3s", ErrInvalidConfig, cfg.WorkerIDTTL)
	}
	if cfg.PrimaryLeaseTTL < 3*time.Second {
		return fmt.Errorf("%w: primaryLeaseTtl (%v) must be >= 3s", ErrInvalidConfig, cfg.PrimaryLeaseTTL)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweepInterval must be > 0", ErrInvalidConfig)
	}
	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 150 {
		return fmt.Errorf("%w: defaultVolume (%d) must be within 0-150", ErrInvalidConfig, cfg.DefaultVolume)
	}
	switch cfg.Store.Backend {
	case StoreNATS, StoreRedis:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.Store.Backend)
	}
	if _, err := strategy.New(cfg.Balancing.Strategy, strategy.Options{}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// ValidateWithWarnings logs warnings for legal but risky values.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.HeartbeatInterval > LivenessWindow/4 {
		logger.Warn(
			"heartbeatInterval leaves little margin before a worker is considered dead",
			"heartbeatInterval", cfg.HeartbeatInterval,
			"livenessWindow", LivenessWindow,
			"recommended", LivenessWindow/4,
		)
	}
	if cfg.SweepInterval < cfg.HeartbeatInterval {
		logger.Warn(
			"sweepInterval is shorter than heartbeatInterval, sweeps will mostly find nothing",
			"sweepInterval", cfg.SweepInterval,
			"heartbeatInterval", cfg.HeartbeatInterval,
		)
	}
	if cfg.Balancing.MaxSessions == 0 && cfg.Balancing.Strategy != strategy.NameConsistentHash {
		logger.Warn("balancing.maxSessions is unlimited, the priority order alone decides placement")
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := chorus.TestConfig()
//	cfg.WorkerID = "bot-1"
//	cfg.ClientID = "client-1"
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.HeartbeatInterval = 200 * time.Millisecond
	cfg.WorkerIDTTL = 3 * time.Second
	cfg.PrimaryLeaseTTL = 3 * time.Second
	cfg.SweepInterval = 200 * time.Millisecond
	cfg.OperationTimeout = 2 * time.Second
	cfg.StartupTimeout = 10 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.Resume.SettleDelay = 10 * time.Millisecond
	cfg.Resume.ConnectTimeout = 2 * time.Second
	cfg.KVBuckets.MemoryStorage = true

	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults.
//
// Validation is left to NewWorker so callers can override fields first.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Parsed configuration with defaults applied
//   - error: Read or parse error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	SetDefaults(&cfg)

	return cfg, nil
}
