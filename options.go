package chorus

import "github.com/redis/go-redis/v9"

// Option configures a Worker with optional dependencies.
type Option func(*workerOptions)

// workerOptions holds optional Worker configuration.
type workerOptions struct {
	strategy      BalancingStrategy
	electionAgent ElectionAgent
	redis         redis.UniversalClient
	hooks         *Hooks
	metrics       MetricsCollector
	logger        Logger
}

// WithStrategy overrides the strategy named by Config.Balancing.Strategy.
//
// Parameters:
//   - s: BalancingStrategy implementation
//
// Returns:
//   - Option: Functional option for NewWorker
//
// Example:
//
//	w, err := chorus.NewWorker(&cfg, nc, backend, gw,
//	    chorus.WithStrategy(strategy.NewConsistentHash(strategy.WithVirtualNodes(300))))
func WithStrategy(s BalancingStrategy) Option {
	return func(o *workerOptions) {
		o.strategy = s
	}
}

// WithElectionAgent replaces the NATS KV primary lease.
//
// Parameters:
//   - agent: ElectionAgent implementation
//
// Returns:
//   - Option: Functional option for NewWorker
func WithElectionAgent(agent ElectionAgent) Option {
	return func(o *workerOptions) {
		o.electionAgent = agent
	}
}

// WithRedis supplies the client used when Config.Store.Backend is "redis".
//
// The caller owns the client and closes it after Stop.
//
// Parameters:
//   - client: Redis client (single node, cluster or sentinel)
//
// Returns:
//   - Option: Functional option for NewWorker
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.Redis.Addr})
//	w, err := chorus.NewWorker(&cfg, nc, backend, gw, chorus.WithRedis(rdb))
func WithRedis(client redis.UniversalClient) Option {
	return func(o *workerOptions) {
		o.redis = client
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewWorker
//
// Example:
//
//	hooks := &chorus.Hooks{
//	    OnGuildResumed: func(ctx context.Context, guildID string, tracks int) error {
//	        return announce(ctx, guildID, tracks)
//	    },
//	}
//	w, err := chorus.NewWorker(&cfg, nc, backend, gw, chorus.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *workerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewWorker
//
// Example:
//
//	collector := myPrometheusCollector
//	w, err := chorus.NewWorker(&cfg, nc, backend, gw, chorus.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *workerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewWorker
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	w, err := chorus.NewWorker(&cfg, nc, backend, gw, chorus.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *workerOptions) {
		o.logger = logger
	}
}
