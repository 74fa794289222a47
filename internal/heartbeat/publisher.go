package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/types"
)

// Common errors for heartbeat operations.
var (
	ErrNotStarted     = errors.New("publisher not started")
	ErrAlreadyStarted = errors.New("publisher already started")
	ErrNoWorkerID     = errors.New("worker ID not set")
)

// Stats is the load report sampled for every heartbeat.
type Stats struct {
	SessionCount     int
	TenantCount      int
	PingMs           int64
	BackendConnected bool
}

// StatsProvider samples the worker's current load. It must be cheap and non-blocking.
type StatsProvider func() Stats

// Publisher publishes periodic heartbeats for one worker.
//
// The first record is written synchronously by Start with status Starting.
// After SetReady(true) the status is derived from the sampled stats. Stop
// writes a final Offline record so the worker leaves the live set at once
// instead of after the liveness window.
type Publisher struct {
	registry *Registry
	workerID string
	interval time.Duration
	stats    StatsProvider
	metrics  types.MetricsCollector
	logger   types.Logger

	mu          sync.Mutex
	displayName string
	clientID    string
	isPrimary   bool
	ready       bool
	started     bool
	startedAt   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	ticker      *time.Ticker
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithIdentity sets the descriptive fields carried by every heartbeat.
func WithIdentity(displayName, clientID string) Option {
	return func(p *Publisher) {
		p.displayName = displayName
		p.clientID = clientID
	}
}

// WithStats sets the load sampler. Without it every heartbeat reports zero load
// and a connected backend.
func WithStats(fn StatsProvider) Option {
	return func(p *Publisher) { p.stats = fn }
}

// WithMetrics sets the metrics collector for heartbeat events.
func WithMetrics(m types.MetricsCollector) Option {
	return func(p *Publisher) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l types.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a new heartbeat publisher.
//
// Parameters:
//   - registry: Registry the records are written to
//   - workerID: Configured worker ID
//   - interval: Heartbeat interval; must stay well under types.LivenessWindow
//   - opts: Optional configuration
//
// Returns:
//   - *Publisher: New heartbeat publisher instance
func New(registry *Registry, workerID string, interval time.Duration, opts ...Option) *Publisher {
	p := &Publisher{
		registry: registry,
		workerID: workerID,
		interval: interval,
		stats: func() Stats {
			return Stats{BackendConnected: true}
		},
		metrics: metrics.NewNop(),
		logger:  logging.NewNop(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// SetReady marks startup as finished (or not). While not ready the worker reports Starting.
func (p *Publisher) SetReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ready = ready
}

// SetPrimary records whether this worker currently holds the primary role.
func (p *Publisher) SetPrimary(isPrimary bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.isPrimary = isPrimary
}

// Start begins publishing heartbeats in the background.
//
// Publishes the first heartbeat immediately, then at regular intervals.
// Continues until Stop() is called.
//
// Parameters:
//   - ctx: Context for the initial publish
//
// Returns:
//   - error: ErrAlreadyStarted if already running, ErrNoWorkerID if worker ID not set,
//     or the initial publish error
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.workerID == "" {
		return ErrNoWorkerID
	}

	p.startedAt = p.registry.Now()
	if _, err := p.registry.Upsert(ctx, p.workerID, p.fieldsLocked()); err != nil {
		return fmt.Errorf("failed to publish initial heartbeat: %w", err)
	}
	p.metrics.RecordHeartbeat(p.workerID, true)

	p.started = true
	p.ticker = time.NewTicker(p.interval)
	go p.publishLoop()

	return nil
}

// Stop stops the publisher and writes a final Offline record.
//
// Blocks until the publisher goroutine exits.
//
// Returns:
//   - error: ErrNotStarted if not running, or the Offline publish error
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}

	p.ticker.Stop()
	close(p.stopCh)
	p.started = false
	p.mu.Unlock()

	<-p.doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	offline := types.StatusOffline
	zero := 0
	if _, err := p.registry.Upsert(ctx, p.workerID, types.HeartbeatFields{
		Status:       &offline,
		SessionCount: &zero,
	}); err != nil {
		p.metrics.RecordHeartbeat(p.workerID, false)
		return fmt.Errorf("stopped but failed to publish offline heartbeat: %w", err)
	}
	p.metrics.RecordHeartbeat(p.workerID, true)

	return nil
}

// PublishNow writes a heartbeat immediately, outside the regular schedule.
func (p *Publisher) PublishNow(ctx context.Context) error {
	p.mu.Lock()
	fields := p.fieldsLocked()
	p.mu.Unlock()

	_, err := p.registry.Upsert(ctx, p.workerID, fields)
	p.metrics.RecordHeartbeat(p.workerID, err == nil)

	return err
}

// publishLoop is the background goroutine that publishes heartbeats.
func (p *Publisher) publishLoop() {
	defer close(p.doneCh)

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout())
			err := p.PublishNow(ctx)
			cancel()

			if err != nil {
				p.logger.Warn("heartbeat publish failed", "worker_id", p.workerID, "error", err)
			}
		}
	}
}

func (p *Publisher) publishTimeout() time.Duration {
	if p.interval < 5*time.Second {
		return p.interval
	}

	return 5 * time.Second
}

// fieldsLocked samples stats and builds the full heartbeat update. Caller holds mu.
func (p *Publisher) fieldsLocked() types.HeartbeatFields {
	st := p.stats()
	status := deriveStatus(p.ready, st)
	memMB := memoryUsageMB()
	uptime := p.registry.Now().Sub(p.startedAt)
	displayName := p.displayName
	clientID := p.clientID
	isPrimary := p.isPrimary

	return types.HeartbeatFields{
		DisplayName:      &displayName,
		ClientID:         &clientID,
		IsPrimary:        &isPrimary,
		Status:           &status,
		SessionCount:     &st.SessionCount,
		TenantCount:      &st.TenantCount,
		MemoryUsageMB:    &memMB,
		PingMs:           &st.PingMs,
		BackendConnected: &st.BackendConnected,
		Uptime:           &uptime,
	}
}

// deriveStatus maps readiness and load to the reported status.
func deriveStatus(ready bool, st Stats) types.WorkerStatus {
	switch {
	case !ready:
		return types.StatusStarting
	case !st.BackendConnected:
		return types.StatusError
	case st.SessionCount > 0:
		return types.StatusInUse
	default:
		return types.StatusAvailable
	}
}

func memoryUsageMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return float64(ms.HeapAlloc) / (1024 * 1024)
}

// WorkerID returns the worker ID the publisher writes for.
func (p *Publisher) WorkerID() string {
	return p.workerID
}

// IsStarted returns whether the publisher is currently running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
