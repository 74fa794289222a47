package chorus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chorustest "github.com/arloliu/chorus/testing"
)

func validConfig() Config {
	cfg := TestConfig()
	cfg.WorkerID = "bot-1"
	cfg.ClientID = "client-1"

	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, 30*time.Second, cfg.WorkerIDTTL)
	require.Equal(t, 30*time.Second, cfg.PrimaryLeaseTTL)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, 80, cfg.DefaultVolume)
	require.Equal(t, "priority", cfg.Balancing.Strategy)
	require.Equal(t, 5, cfg.Resume.BatchSize)
	require.Equal(t, 500*time.Millisecond, cfg.Resume.SettleDelay)
	require.Equal(t, StoreNATS, cfg.Store.Backend)
	require.Equal(t, "chorus-snapshot", cfg.KVBuckets.SnapshotBucket)
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{WorkerID: "bot-1"}
		SetDefaults(&cfg)

		require.Equal(t, "bot-1", cfg.DisplayName)
		require.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
		require.Equal(t, "chorus-heartbeat", cfg.KVBuckets.HeartbeatBucket)
		require.Equal(t, "zap", cfg.Logging.Backend)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			WorkerID:          "bot-2",
			DisplayName:       "Second",
			HeartbeatInterval: 5 * time.Second,
			DefaultVolume:     100,
			Balancing:         BalancingConfig{Strategy: "least-loaded"},
			Resume:            ResumeConfig{BatchSize: 10},
			Store:             StoreConfig{Backend: StoreRedis},
		}
		SetDefaults(&cfg)

		require.Equal(t, "Second", cfg.DisplayName)
		require.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
		require.Equal(t, 100, cfg.DefaultVolume)
		require.Equal(t, "least-loaded", cfg.Balancing.Strategy)
		require.Equal(t, 10, cfg.Resume.BatchSize)
		require.Equal(t, StoreRedis, cfg.Store.Backend)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing worker id", mutate: func(c *Config) { c.WorkerID = "" }, wantErr: "workerId"},
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }, wantErr: "clientId"},
		{name: "heartbeat slower than half the liveness window", mutate: func(c *Config) { c.HeartbeatInterval = 45 * time.Second }, wantErr: "heartbeatInterval"},
		{name: "short worker id ttl", mutate: func(c *Config) { c.WorkerIDTTL = time.Second }, wantErr: "workerIdTtl"},
		{name: "short primary lease", mutate: func(c *Config) { c.PrimaryLeaseTTL = time.Second }, wantErr: "primaryLeaseTtl"},
		{name: "volume out of range", mutate: func(c *Config) { c.DefaultVolume = 151 }, wantErr: "defaultVolume"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "etcd" }, wantErr: "store backend"},
		{name: "unknown strategy", mutate: func(c *Config) { c.Balancing.Strategy = "random" }, wantErr: "unknown balancing strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.HeartbeatInterval = 20 * time.Second
	cfg.SweepInterval = time.Second

	require.NotPanics(t, func() {
		cfg.ValidateWithWarnings(chorustest.NewTestLogger(t))
	})
}

func TestLoadConfig(t *testing.T) {
	content := `
workerId: bot-7
clientId: "1234567890"
isPrimary: true
heartbeatInterval: 10s
balancing:
  strategy: consistent-hash
  preference: [bot-1, bot-7]
resume:
  batchSize: 8
lavalink:
  searchPrefix: scsearch
  nodes:
    - id: main
      host: lavalink.internal
      port: 2333
      password: youshallnotpass
`
	path := filepath.Join(t.TempDir(), "chorus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "bot-7", cfg.WorkerID)
	require.Equal(t, "bot-7", cfg.DisplayName)
	require.True(t, cfg.IsPrimary)
	require.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, []string{"bot-1", "bot-7"}, cfg.Balancing.Preference)
	require.Equal(t, 8, cfg.Resume.BatchSize)
	require.Equal(t, 30*time.Second, cfg.WorkerIDTTL)

	ll := cfg.Lavalink.ClientConfig(cfg.ClientID)
	require.Equal(t, "1234567890", ll.UserID)
	require.Equal(t, "scsearch", ll.SearchPrefix)
	require.Len(t, ll.Nodes, 1)
	require.Equal(t, "lavalink.internal", ll.Nodes[0].Host)
	require.Equal(t, 2333, ll.Nodes[0].Port)

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("workerId: [unterminated"), 0o600))
		_, err := LoadConfig(bad)
		require.Error(t, err)
	})
}
