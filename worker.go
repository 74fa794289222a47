package chorus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/arloliu/chorus/internal/balancer"
	"github.com/arloliu/chorus/internal/command"
	"github.com/arloliu/chorus/internal/directory"
	"github.com/arloliu/chorus/internal/election"
	"github.com/arloliu/chorus/internal/heartbeat"
	"github.com/arloliu/chorus/internal/hooks"
	"github.com/arloliu/chorus/internal/kvstore"
	"github.com/arloliu/chorus/internal/kvutil"
	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/internal/natsutil"
	"github.com/arloliu/chorus/internal/player"
	"github.com/arloliu/chorus/internal/redisstore"
	"github.com/arloliu/chorus/internal/resume"
	"github.com/arloliu/chorus/internal/snapshot"
	"github.com/arloliu/chorus/internal/stableid"
	"github.com/arloliu/chorus/strategy"
	"github.com/arloliu/chorus/types"
)

// primaryKey is the election bucket key holding the primary lease.
const primaryKey = "primary"

// tenantCounter is implemented by gateways that know how many guilds the client serves.
type tenantCounter interface {
	GuildCount() int
}

// Worker is one bot instance of the fleet.
//
// Worker is the main entry point of the chorus library. It handles:
//   - Worker ID leasing so two processes never run the same identity
//   - Heartbeat publishing so the fleet knows which workers are live
//   - Primary election and the stale assignment sweep
//   - The command listener that drives the session manager
//   - Resuming saved sessions after a restart
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//
// Lifecycle:
//   - Create with NewWorker()
//   - Call Start() to claim the ID and begin serving
//   - Call Stop() for graceful shutdown; live sessions stay saved for the next start
type Worker struct {
	cfg     Config
	conn    *nats.Conn
	backend AudioBackend
	gateway Gateway
	redis   redis.UniversalClient

	strategy      BalancingStrategy
	electionAgent ElectionAgent
	hooks         *Hooks
	metrics       MetricsCollector
	logger        Logger

	// Components, built by Start.
	registry  *heartbeat.Registry
	directory *directory.Directory
	snapshots *snapshot.Store
	balancer  *balancer.Balancer
	sessions  *player.Manager
	claimer   *stableid.Claimer
	publisher *heartbeat.Publisher
	lease     *election.Lease
	duty      *election.Duty
	listener  *command.Listener

	state  atomic.Int32 // State
	report atomic.Pointer[resume.Report]

	ctx          context.Context
	cancel       context.CancelFunc
	resumeCancel context.CancelFunc
	resumeDone   chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
}

// NewWorker creates a new Worker with the provided configuration.
//
// Returns a concrete *Worker struct following the "accept interfaces, return structs" principle.
//
// Parameters:
//   - cfg: Worker configuration; zero fields take defaults
//   - conn: NATS connection for leases, KV buckets and commands
//   - backend: Audio backend sessions run on
//   - gateway: Chat gateway used to verify guilds and channels
//   - opts: Optional configuration (strategy, election agent, redis, hooks, metrics, logger)
//
// Returns:
//   - *Worker: Initialized worker
//   - error: Validation error if configuration or dependencies are invalid
//
// Example:
//
//	cfg := chorus.DefaultConfig()
//	cfg.WorkerID, cfg.ClientID = "bot-1", "1234567890"
//	w, err := chorus.NewWorker(&cfg, nc, lavalinkClient, gatewayBridge)
func NewWorker(cfg *Config, conn *nats.Conn, backend AudioBackend, gateway Gateway, opts ...Option) (*Worker, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}
	if backend == nil {
		return nil, ErrBackendRequired
	}
	if gateway == nil {
		return nil, ErrGatewayRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &workerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if cfg.Store.Backend == StoreRedis && options.redis == nil {
		return nil, ErrRedisClientRequired
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}

	cfg.ValidateWithWarnings(loggerInstance)

	strat := options.strategy
	if strat == nil {
		var err error
		strat, err = strategy.New(cfg.Balancing.Strategy, strategy.Options{
			MaxSessions:  cfg.Balancing.MaxSessions,
			VirtualNodes: cfg.Balancing.VirtualNodes,
			HashSeed:     cfg.Balancing.HashSeed,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	w := &Worker{
		cfg:           *cfg,
		conn:          conn,
		backend:       backend,
		gateway:       gateway,
		redis:         options.redis,
		strategy:      strat,
		electionAgent: options.electionAgent,
		hooks:         hooks.Fill(options.hooks),
		metrics:       metricsCollector,
		logger:        loggerInstance,
	}
	w.state.Store(int32(StateInit))

	return w, nil
}

// Start brings the worker up.
//
// Startup order:
//  1. Ensure the KV buckets
//  2. Claim the worker ID lease
//  3. Publish the first heartbeat (status Starting)
//  4. Contend for the primary role when configured as primary-capable
//  5. Start the session manager and the command listener
//  6. Resume saved sessions in the background; the worker reports
//     Available once resumption completes
//
// Start returns after step 5. Store and lease failures are returned so a
// process supervisor can restart the worker.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - error: ErrAlreadyStarted, ErrWorkerIDInUse, or a wrapped startup error
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx != nil {
		return ErrAlreadyStarted
	}
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))

	startupCtx, cancel := context.WithTimeout(ctx, w.cfg.StartupTimeout)
	defer cancel()

	if err := w.start(startupCtx); err != nil {
		w.abortStart()
		return err
	}

	return nil
}

func (w *Worker) start(ctx context.Context) error {
	// Step 1: buckets and stores
	buckets, err := w.ensureBuckets(ctx)
	if err != nil {
		return err
	}
	w.buildComponents(buckets)

	// Step 2: worker ID lease
	w.transitionState(StateClaimingID)
	w.claimer = stableid.NewClaimer(buckets[w.cfg.KVBuckets.StableIDBucket], w.cfg.WorkerID, w.cfg.WorkerIDTTL, w.logger)
	if err := w.claimer.Claim(ctx); err != nil {
		return fmt.Errorf("failed to claim worker ID: %w", err)
	}
	if err := w.claimer.StartRenewal(); err != nil {
		return fmt.Errorf("failed to start worker ID renewal: %w", err)
	}
	w.wg.Add(1)
	go w.watchLease()

	// Step 3: heartbeat
	w.transitionState(StateStarting)
	w.publisher = heartbeat.New(w.registry, w.cfg.WorkerID, w.cfg.HeartbeatInterval,
		heartbeat.WithIdentity(w.cfg.DisplayName, w.cfg.ClientID),
		heartbeat.WithStats(w.stats),
		heartbeat.WithMetrics(w.metrics),
		heartbeat.WithLogger(w.logger),
	)
	if err := w.publisher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start heartbeat: %w", err)
	}

	// Step 4: primary election and sweep
	if w.cfg.IsPrimary {
		agent := w.electionAgent
		if agent == nil {
			agent = w.lease
		}
		w.duty = election.NewDuty(agent, w.cfg.WorkerID, w.cfg.PrimaryLeaseTTL,
			election.WithTask(w.cfg.SweepInterval, w.sweep),
			election.WithOnChange(w.onPrimaryChange),
			election.WithMetrics(w.metrics),
			election.WithLogger(w.logger),
		)
		if err := w.duty.Start(ctx); err != nil {
			return fmt.Errorf("failed to start primary election: %w", err)
		}
	}

	// Step 5: sessions and commands
	if err := w.sessions.Start(w.ctx); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}
	w.listener, err = command.New(w.conn, w.cfg.WorkerID, w.sessions,
		command.WithTimeout(w.cfg.CommandTimeout),
		command.WithLogger(w.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create command listener: %w", err)
	}
	if err := w.listener.Start(w.ctx); err != nil {
		return fmt.Errorf("failed to start command listener: %w", err)
	}

	// Step 6: resumption
	w.transitionState(StateResuming)
	resumeCtx, resumeCancel := context.WithCancel(w.ctx)
	w.resumeCancel = resumeCancel
	w.resumeDone = make(chan struct{})
	go w.runResumption(resumeCtx)

	return nil
}

// ensureBuckets creates or opens every KV bucket the worker needs.
func (w *Worker) ensureBuckets(ctx context.Context) (map[string]jetstream.KeyValue, error) {
	js, err := jetstream.New(w.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	b := w.cfg.KVBuckets
	specs := []kvutil.BucketSpec{
		{Name: b.StableIDBucket, TTL: w.cfg.WorkerIDTTL},
		{Name: b.ElectionBucket, TTL: w.cfg.PrimaryLeaseTTL},
	}
	if w.cfg.Store.Backend == StoreNATS {
		// Heartbeats, assignments and snapshots never expire; staleness is judged by lastHeartbeat.
		specs = append(specs,
			kvutil.BucketSpec{Name: b.HeartbeatBucket},
			kvutil.BucketSpec{Name: b.AssignmentBucket},
			kvutil.BucketSpec{Name: b.SnapshotBucket},
		)
	}

	storage := jetstream.FileStorage
	if b.MemoryStorage {
		storage = jetstream.MemoryStorage
	}

	buckets, err := kvutil.EnsureBuckets(ctx, js, storage, specs...)
	if err != nil {
		if natsutil.IsConnectivityError(err) {
			return nil, fmt.Errorf("%w: failed to ensure KV buckets: %w", ErrConnectivity, err)
		}

		return nil, fmt.Errorf("failed to ensure KV buckets: %w", err)
	}

	return buckets, nil
}

// buildComponents wires the registries, balancer and session manager over the configured store.
func (w *Worker) buildComponents(buckets map[string]jetstream.KeyValue) {
	var hbStore, asStore, snStore types.DocumentStore
	switch w.cfg.Store.Backend {
	case StoreRedis:
		prefix := redisstore.WithKeyPrefix(w.cfg.Store.Redis.KeyPrefix)
		hbStore = redisstore.New(w.redis, "heartbeat", prefix, redisstore.WithMetrics(w.metrics))
		asStore = redisstore.New(w.redis, "assignment", prefix, redisstore.WithMetrics(w.metrics))
		snStore = redisstore.New(w.redis, "snapshot", prefix, redisstore.WithMetrics(w.metrics))
	default:
		b := w.cfg.KVBuckets
		hbStore = kvstore.New(buckets[b.HeartbeatBucket], kvstore.WithMetrics(w.metrics))
		asStore = kvstore.New(buckets[b.AssignmentBucket], kvstore.WithMetrics(w.metrics))
		snStore = kvstore.New(buckets[b.SnapshotBucket], kvstore.WithMetrics(w.metrics))
	}

	w.registry = heartbeat.NewRegistry(hbStore)
	w.directory = directory.New(asStore,
		directory.WithMetrics(w.metrics),
		directory.WithLogger(w.logger),
	)
	w.snapshots = snapshot.New(snStore,
		snapshot.WithMetrics(w.metrics),
		snapshot.WithLogger(w.logger),
	)
	w.balancer = balancer.New(w.registry, w.directory, w.strategy,
		balancer.WithPreference(w.cfg.Balancing.Preference),
		balancer.WithMetrics(w.metrics),
		balancer.WithLogger(w.logger),
	)
	w.sessions = player.New(player.Config{
		WorkerID:      w.cfg.WorkerID,
		ClientID:      w.cfg.ClientID,
		DefaultVolume: w.cfg.DefaultVolume,
	}, w.backend, w.directory, w.snapshots,
		player.WithHooks(w.hooks),
		player.WithMetrics(w.metrics),
		player.WithLogger(w.logger),
	)
	w.lease = election.NewLease(buckets[w.cfg.KVBuckets.ElectionBucket], primaryKey)
}

// abortStart undoes a partially completed Start. Caller holds mu.
func (w *Worker) abortStart() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()

	if w.listener != nil {
		_ = w.listener.Stop()
	}
	if w.sessions != nil {
		_ = w.sessions.Stop()
	}
	if w.duty != nil {
		_ = w.duty.Stop(ctx)
	}
	if w.publisher != nil && w.publisher.IsStarted() {
		_ = w.publisher.Stop()
	}
	if w.claimer != nil {
		_ = w.claimer.Release(ctx)
	}

	w.cancel()
	w.wg.Wait()
	w.ctx, w.cancel = nil, nil
	w.listener, w.duty, w.publisher, w.claimer = nil, nil, nil, nil
	w.registry, w.directory, w.snapshots, w.balancer, w.sessions, w.lease = nil, nil, nil, nil, nil, nil
	w.state.Store(int32(StateInit))
}

// runResumption restores saved sessions and then marks the worker ready.
func (w *Worker) runResumption(ctx context.Context) {
	defer close(w.resumeDone)

	if !w.cfg.Resume.Disabled {
		ctrl := resume.New(w.snapshots, w.backend, w.gateway, resume.Config{
			WorkerID:       w.cfg.WorkerID,
			BatchSize:      w.cfg.Resume.BatchSize,
			SettleDelay:    w.cfg.Resume.SettleDelay,
			ConnectTimeout: w.cfg.Resume.ConnectTimeout,
		},
			resume.WithSessions(w.sessions),
			resume.WithOwnership(w.directory),
			resume.WithHooks(w.hooks),
			resume.WithMetrics(w.metrics),
			resume.WithLogger(w.logger),
		)

		report, err := ctrl.Run(ctx)
		w.report.Store(&report)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			w.logger.Error("session resumption failed", "worker_id", w.cfg.WorkerID, "error", err)
			w.reportError(err)
		default:
			w.logger.Info("session resumption finished",
				"worker_id", w.cfg.WorkerID,
				"guilds", len(report.Guilds),
				"resumed", report.Count(resume.OutcomeResumed),
				"kept_alive", report.Count(resume.OutcomeKeptAlive),
				"abandoned", report.Count(resume.OutcomeAbandoned),
				"skipped", report.Count(resume.OutcomeSkipped),
				"failed", report.Count(resume.OutcomeFailed),
				"duration", report.Duration,
			)
		}
	}

	if ctx.Err() != nil {
		return
	}

	w.publisher.SetReady(true)
	pubCtx, cancel := context.WithTimeout(ctx, w.cfg.OperationTimeout)
	if err := w.publisher.PublishNow(pubCtx); err != nil {
		w.logger.Warn("failed to publish ready heartbeat", "worker_id", w.cfg.WorkerID, "error", err)
	}
	cancel()

	w.transitionState(StateReady)
}

// Stop gracefully shuts down the worker.
//
// Shutdown order:
//  1. Cancel resumption (in-progress guilds are torn down best-effort)
//  2. Stop the command listener and the session manager
//  3. Stop the sweep and release the primary lease
//  4. Publish an Offline heartbeat
//  5. Release the worker ID lease
//
// Live sessions are not destroyed: their snapshots stay active so the next
// start of this worker resumes them.
//
// Parameters:
//   - ctx: Context for shutdown timeout
//
// Returns:
//   - error: ErrNotStarted, or the first shutdown error
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx == nil || w.State() == StateShutdown {
		return ErrNotStarted
	}
	w.transitionState(StateShutdown)

	var shutdownErr error
	record := func(step string, err error) {
		if err == nil {
			return
		}
		w.logger.Error("shutdown step failed", "step", step, "worker_id", w.cfg.WorkerID, "error", err)
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("%s failed: %w", step, err)
		}
	}

	// Step 1: resumption
	w.resumeCancel()
	select {
	case <-w.resumeDone:
	case <-ctx.Done():
		record("resumption cancel", ctx.Err())
	}

	// Step 2: commands and sessions
	if err := w.listener.Stop(); err != nil && !errors.Is(err, command.ErrNotStarted) {
		record("command listener stop", err)
	}
	if err := w.sessions.Stop(); err != nil && !errors.Is(err, player.ErrNotStarted) {
		record("session manager stop", err)
	}

	// Step 3: sweep and primary lease
	if w.duty != nil {
		if err := w.duty.Stop(ctx); err != nil && !errors.Is(err, election.ErrNotStarted) {
			record("primary release", err)
		}
	}

	// Step 4: offline heartbeat
	if err := w.publisher.Stop(); err != nil && !errors.Is(err, heartbeat.ErrNotStarted) {
		record("heartbeat stop", err)
	}

	// Step 5: worker ID lease
	if err := w.claimer.Release(ctx); err != nil && !errors.Is(err, stableid.ErrNotClaimed) {
		record("worker ID release", err)
	}

	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully", "worker_id", w.cfg.WorkerID)
		return shutdownErr
	case <-ctx.Done():
		w.logger.Error("shutdown timeout exceeded, some goroutines may still be running")
		if shutdownErr == nil {
			return ctx.Err()
		}

		return fmt.Errorf("shutdown timeout: %w; additional error: %w", ctx.Err(), shutdownErr)
	}
}

// watchLease reports a lost worker ID lease.
func (w *Worker) watchLease() {
	defer w.wg.Done()

	select {
	case <-w.ctx.Done():
	case <-w.claimer.Lost():
		err := fmt.Errorf("%w: lease for %s was lost", ErrWorkerIDInUse, w.cfg.WorkerID)
		w.logger.Error("worker ID lease lost, another process may run this worker", "worker_id", w.cfg.WorkerID)
		w.reportError(err)
	}
}

// stats samples the worker's load for heartbeats.
func (w *Worker) stats() heartbeat.Stats {
	st := heartbeat.Stats{
		SessionCount:     w.sessions.SessionCount(),
		PingMs:           w.gateway.Latency().Milliseconds(),
		BackendConnected: w.backend.Connected(),
	}
	if tc, ok := w.gateway.(tenantCounter); ok {
		st.TenantCount = tc.GuildCount()
	}
	w.metrics.RecordSessions(st.SessionCount)

	return st
}

// sweep deactivates assignments whose owner is no longer live. Runs on the primary only.
func (w *Worker) sweep(ctx context.Context) error {
	live, err := w.registry.ListLive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list live workers: %w", err)
	}
	w.metrics.RecordLiveWorkers(len(live))

	liveSet := make(map[string]struct{}, len(live))
	for _, rec := range live {
		liveSet[rec.WorkerID] = struct{}{}
	}

	n, err := w.directory.DeactivateOrphans(ctx, func(workerID string) bool {
		_, ok := liveSet[workerID]
		return ok
	})
	if err != nil {
		return fmt.Errorf("failed to sweep assignments: %w", err)
	}
	if n > 0 {
		w.logger.Info("stale assignment sweep finished", "deactivated", n, "live_workers", len(live))
	}

	return nil
}

// onPrimaryChange publishes the new role and notifies hooks.
func (w *Worker) onPrimaryChange(ctx context.Context, isPrimary bool) {
	w.publisher.SetPrimary(isPrimary)
	if err := w.publisher.PublishNow(ctx); err != nil {
		w.logger.Debug("failed to publish primary change", "worker_id", w.cfg.WorkerID, "error", err)
	}

	hookCtx := w.ctx
	go func() {
		if err := w.hooks.OnPrimaryChanged(hookCtx, isPrimary); err != nil {
			w.logger.Error("primary change hook error", "is_primary", isPrimary, "error", err)
		}
	}()
}

func (w *Worker) reportError(err error) {
	hookCtx := w.ctx
	go func() {
		if herr := w.hooks.OnError(hookCtx, err); herr != nil {
			w.logger.Error("error hook failed", "error", herr)
		}
	}()
}

func (w *Worker) transitionState(to State) {
	from := State(w.state.Swap(int32(to))) //nolint:gosec // State values are controlled enum
	if from == to {
		return
	}

	w.logger.Info("state transition",
		"from", from.String(),
		"to", to.String(),
		"worker_id", w.cfg.WorkerID,
	)
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// WorkerID returns the configured worker ID.
func (w *Worker) WorkerID() string {
	return w.cfg.WorkerID
}

// IsPrimary reports whether this worker currently holds the primary role.
func (w *Worker) IsPrimary() bool {
	return w.duty != nil && w.duty.IsPrimary()
}

// ResumeReport returns the report of the startup resumption run, if it finished.
func (w *Worker) ResumeReport() (resume.Report, bool) {
	r := w.report.Load()
	if r == nil {
		return resume.Report{}, false
	}

	return *r, true
}

// Directory returns the guild assignment directory (nil before Start).
func (w *Worker) Directory() *directory.Directory { return w.directory }

// Balancer returns the load balancer (nil before Start).
func (w *Worker) Balancer() *balancer.Balancer { return w.balancer }

// Snapshots returns the session snapshot store (nil before Start).
func (w *Worker) Snapshots() *snapshot.Store { return w.snapshots }

// Registry returns the heartbeat registry (nil before Start).
func (w *Worker) Registry() *heartbeat.Registry { return w.registry }

// Sessions returns the session manager (nil before Start).
func (w *Worker) Sessions() *player.Manager { return w.sessions }

// Resolve returns the guild's effective assignment, moving it off a dead owner if needed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild to route
//
// Returns:
//   - GuildAssignment: The assignment naming the worker commands should go to
//   - error: ErrNotStarted, ErrNoWorkersAvailable or a store error
func (w *Worker) Resolve(ctx context.Context, guildID string) (GuildAssignment, error) {
	if w.balancer == nil {
		return GuildAssignment{}, ErrNotStarted
	}

	return w.balancer.Resolve(ctx, guildID, nil)
}

// ForceAssign moves a guild to targetWorkerID on an operator's request.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild to move
//   - targetWorkerID: New owner; must be live
//
// Returns:
//   - Result: Outcome; Err wraps ErrTargetUnavailable on rejection
func (w *Worker) ForceAssign(ctx context.Context, guildID, targetWorkerID string) Result {
	if w.balancer == nil {
		return types.Fail("worker not started", ErrNotStarted)
	}

	return w.balancer.ForceAssign(ctx, guildID, targetWorkerID)
}

// ClusterStatus summarizes the fleet as seen from the shared store.
//
// Returns:
//   - ClusterStatus: Workers with liveness, totals over live workers, assignment and snapshot counts
//   - error: ErrNotStarted or a store error
func (w *Worker) ClusterStatus(ctx context.Context) (ClusterStatus, error) {
	if w.registry == nil {
		return ClusterStatus{}, ErrNotStarted
	}

	records, err := w.registry.List(ctx)
	if err != nil {
		return ClusterStatus{}, fmt.Errorf("failed to list heartbeats: %w", err)
	}

	now := w.registry.Now()
	status := ClusterStatus{
		Workers:     make([]WorkerView, 0, len(records)),
		Strategy:    w.balancer.StrategyName(),
		GeneratedAt: now,
	}
	for _, rec := range records {
		status.Workers = append(status.Workers, WorkerView{HeartbeatRecord: rec, Live: types.IsLive(rec, now)})
	}
	status.Summarize()

	if status.ActiveAssignments, err = w.directory.CountActive(ctx); err != nil {
		return ClusterStatus{}, fmt.Errorf("failed to count assignments: %w", err)
	}
	if status.SavedSnapshots, err = w.snapshots.CountActive(ctx); err != nil {
		return ClusterStatus{}, fmt.Errorf("failed to count snapshots: %w", err)
	}
	if holder, err := w.lease.Holder(ctx); err == nil {
		status.Primary = holder
	} else {
		w.logger.Debug("failed to read primary lease", "error", err)
	}

	return status, nil
}

// GuildStatus returns the assignment and snapshot of one guild.
//
// Returns:
//   - GuildStatus: What is known about the guild
//   - error: ErrNotFound when neither an assignment nor a snapshot exists
func (w *Worker) GuildStatus(ctx context.Context, guildID string) (GuildStatus, error) {
	if w.directory == nil {
		return GuildStatus{}, ErrNotStarted
	}

	status := GuildStatus{GuildID: guildID}

	rec, err := w.directory.Get(ctx, guildID)
	switch {
	case err == nil:
		status.Assignment = &rec
		if status.OwnerLive, err = w.registry.IsLive(ctx, rec.OwnerWorkerID); err != nil {
			return GuildStatus{}, fmt.Errorf("failed to check owner liveness: %w", err)
		}
	case !errors.Is(err, ErrNotFound):
		return GuildStatus{}, err
	}

	snap, err := w.snapshots.Get(ctx, guildID)
	switch {
	case err == nil:
		status.Snapshot = &snap
	case !errors.Is(err, ErrNotFound):
		return GuildStatus{}, err
	}

	if status.Assignment == nil && status.Snapshot == nil {
		return GuildStatus{}, fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
	}

	return status, nil
}

// Healthy reports whether the worker is serving: started, not shutting down,
// and connected to NATS.
func (w *Worker) Healthy(_ context.Context) error {
	switch w.State() {
	case StateResuming, StateReady:
	default:
		return fmt.Errorf("worker is %s", w.State())
	}
	if !w.conn.IsConnected() {
		return fmt.Errorf("%w: NATS disconnected", ErrConnectivity)
	}

	return nil
}
