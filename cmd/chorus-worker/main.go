// Command chorus-worker runs one bot worker of a chorus fleet.
//
// Configuration is read from the YAML file named by CHORUS_CONFIG (default
// chorus.yaml). A .env file in the working directory is loaded first.
//
// Environment overrides:
//   - CHORUS_CONFIG: configuration file path
//   - CHORUS_NATS_URL: NATS server URL (default nats://127.0.0.1:4222)
//   - CHORUS_WORKER_ID: worker ID, overriding workerId in the file
//   - CHORUS_CLIENT_ID: bot client ID, overriding clientId in the file
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/arloliu/chorus"
	"github.com/arloliu/chorus/internal/api"
	"github.com/arloliu/chorus/internal/gateway"
	"github.com/arloliu/chorus/internal/lavalink"
	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
)

const defaultConfigPath = "chorus.yaml"

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("chorus-worker: %v", err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, flush, err := logging.New(cfg.Logging.Backend, cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsURL := os.Getenv("CHORUS_NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("chorus-worker-"+cfg.WorkerID),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}
	defer nc.Close()

	bridge, err := gateway.New(nc, cfg.WorkerID, cfg.ClientID,
		gateway.WithTimeout(cfg.GatewayTimeout),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create gateway bridge: %w", err)
	}

	backend, err := lavalink.New(cfg.Lavalink.ClientConfig(cfg.ClientID), bridge, lavalink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create lavalink client: %w", err)
	}

	err = bridge.Start(ctx, func(ctx context.Context, u gateway.VoiceUpdate) {
		if err := backend.UpdateVoice(ctx, u.GuildID, u.Server); err != nil {
			logger.Warn("failed to forward voice update", "guild_id", u.GuildID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start gateway bridge: %w", err)
	}
	defer func() { _ = bridge.Stop() }()

	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("failed to start lavalink client: %w", err)
	}
	defer func() { _ = backend.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []chorus.Option{
		chorus.WithMetrics(metrics.NewPrometheus(reg, "chorus")),
		chorus.WithLogger(logger),
		chorus.WithHooks(&chorus.Hooks{
			OnError: func(_ context.Context, err error) error {
				if errors.Is(err, chorus.ErrWorkerIDInUse) {
					// Another process took our identity; exit so the supervisor restarts us.
					stop()
				}

				return nil
			},
		}),
	}
	if cfg.Store.Backend == chorus.StoreRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		opts = append(opts, chorus.WithRedis(rdb))
	}

	worker, err := chorus.NewWorker(cfg, nc, backend, bridge, opts...)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	var server *api.Server
	if cfg.APIAddr != "" {
		server = api.New(cfg.APIAddr, worker,
			api.WithGatherer(reg),
			api.WithHealthCheck(worker.Healthy),
			api.WithLogger(logger),
		)
		if err := server.Start(); err != nil {
			logger.Error("failed to start operator api", "addr", cfg.APIAddr, "error", err)
		}
	}

	logger.Info("worker running", "worker_id", cfg.WorkerID, "client_id", cfg.ClientID, "primary_capable", cfg.IsPrimary)
	<-ctx.Done()
	logger.Info("shutting down", "worker_id", cfg.WorkerID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("operator api shutdown failed", "error", err)
		}
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func loadConfig() (*chorus.Config, error) {
	path := os.Getenv("CHORUS_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := chorus.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if id := os.Getenv("CHORUS_WORKER_ID"); id != "" {
		cfg.WorkerID = id
	}
	if id := os.Getenv("CHORUS_CLIENT_ID"); id != "" {
		cfg.ClientID = id
	}
	chorus.SetDefaults(&cfg)

	return &cfg, nil
}
