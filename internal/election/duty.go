package election

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/types"
)

// Lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("duty already started")
	ErrNotStarted     = errors.New("duty not started")
)

// TaskFunc is work run periodically while this worker is primary.
type TaskFunc func(ctx context.Context) error

// ChangeFunc is called when the primary role is gained or lost.
type ChangeFunc func(ctx context.Context, isPrimary bool)

// DutyOption configures a Duty.
type DutyOption func(*Duty)

// WithTask sets the task run every interval while primary.
func WithTask(interval time.Duration, fn TaskFunc) DutyOption {
	return func(d *Duty) {
		if interval > 0 && fn != nil {
			d.taskInterval = interval
			d.task = fn
		}
	}
}

// WithOnChange sets the primary role change callback.
func WithOnChange(fn ChangeFunc) DutyOption {
	return func(d *Duty) {
		if fn != nil {
			d.onChange = fn
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) DutyOption {
	return func(d *Duty) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) DutyOption {
	return func(d *Duty) {
		if l != nil {
			d.logger = l
		}
	}
}

// Duty contends for the primary role and runs the primary's task while held.
type Duty struct {
	agent    types.ElectionAgent
	workerID string
	leaseTTL time.Duration

	task         TaskFunc
	taskInterval time.Duration
	onChange     ChangeFunc
	metrics      types.MetricsCollector
	logger       types.Logger

	primary atomic.Bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewDuty creates a duty loop over agent.
//
// Parameters:
//   - agent: Election backend (usually a *Lease)
//   - workerID: This worker's ID
//   - leaseTTL: Lease duration; contention and renewal run at a third of it
//   - opts: Optional configuration
//
// Returns:
//   - *Duty: Duty ready to Start
func NewDuty(agent types.ElectionAgent, workerID string, leaseTTL time.Duration, opts ...DutyOption) *Duty {
	d := &Duty{
		agent:    agent,
		workerID: workerID,
		leaseTTL: leaseTTL,
		onChange: func(context.Context, bool) {},
		metrics:  metrics.NewNop(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start makes a first leadership attempt and launches the background loop.
//
// Failing to become primary is not an error: the loop keeps contending.
//
// Returns:
//   - error: ErrAlreadyStarted, or ErrInvalidDuration for a non-positive lease TTL
func (d *Duty) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}
	if d.leaseTTL < time.Second {
		return ErrInvalidDuration
	}

	d.contend(ctx)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.doneCh = make(chan struct{})
	d.started = true

	go d.loop(loopCtx)

	return nil
}

// Stop ends the loop and releases the role if held.
//
// Returns:
//   - error: ErrNotStarted, or the release error
func (d *Duty) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrNotStarted
	}
	d.started = false
	d.cancel()
	doneCh := d.doneCh
	d.mu.Unlock()

	<-doneCh

	if !d.primary.Load() {
		return nil
	}

	err := d.agent.ReleaseLeadership(ctx)
	d.setPrimary(ctx, false)
	if err != nil && !errors.Is(err, ErrNotLeader) {
		return err
	}

	return nil
}

// IsPrimary reports whether this worker held the role at the last check.
func (d *Duty) IsPrimary() bool {
	return d.primary.Load()
}

func (d *Duty) loop(ctx context.Context) {
	defer close(d.doneCh)

	electTicker := time.NewTicker(d.leaseTTL / 3)
	defer electTicker.Stop()

	var taskC <-chan time.Time
	if d.task != nil {
		taskTicker := time.NewTicker(d.taskInterval)
		defer taskTicker.Stop()
		taskC = taskTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-electTicker.C:
			d.contend(ctx)
		case <-taskC:
			if d.primary.Load() {
				d.runTask(ctx)
			}
		}
	}
}

// contend renews the role when held and tries to acquire it otherwise.
func (d *Duty) contend(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.leaseTTL/3)
	defer cancel()

	if d.primary.Load() {
		if err := d.agent.RenewLeadership(ctx); err != nil {
			d.logger.Warn("primary lease renewal failed", "worker_id", d.workerID, "error", err)
			d.setPrimary(ctx, false)
		}

		return
	}

	ok, err := d.agent.RequestLeadership(ctx, d.workerID, int64(d.leaseTTL/time.Second))
	if err != nil {
		d.logger.Debug("primary election attempt failed", "worker_id", d.workerID, "error", err)
		return
	}
	if ok {
		d.setPrimary(ctx, true)
	}
}

func (d *Duty) runTask(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, d.taskInterval)
	defer cancel()

	if err := d.task(ctx); err != nil {
		d.logger.Warn("primary task failed", "worker_id", d.workerID, "error", err)
	}
}

func (d *Duty) setPrimary(ctx context.Context, isPrimary bool) {
	if d.primary.Swap(isPrimary) == isPrimary {
		return
	}

	if isPrimary {
		d.logger.Info("became primary", "worker_id", d.workerID)
	} else {
		d.logger.Info("no longer primary", "worker_id", d.workerID)
	}
	d.metrics.RecordPrimaryChange(d.workerID, isPrimary)
	d.onChange(ctx, isPrimary)
}
