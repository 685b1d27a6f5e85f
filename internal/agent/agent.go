// Package agent runs the poll cycle over all configured accounts.
//
// One cycle visits the accounts sequentially, polling each with the poller of
// its kind and funneling the metrics through a Reporter. Cycles never overlap:
// a tick that fires while a cycle is still running is skipped.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
	"github.com/Schera-ole/queuemonitor/internal/poller"
)

// ReportPublisher receives a summary after every cycle. It must not block.
type ReportPublisher interface {
	Publish(report models.CycleReport)
}

// Options configures an Agent.
type Options struct {
	Accounts   []models.Account
	Interval   time.Duration
	GUIDPrefix string

	Storage   poller.Poller
	Namespace poller.Poller
	Reporter  *Reporter

	// Clock defaults to clockz.RealClock
	Clock clockz.Clock

	// Publisher is optional
	Publisher ReportPublisher

	Logger    *zap.SugaredLogger
	Telemetry *Telemetry
}

// Status is a point in time view of the agent.
type Status struct {
	Polling   bool      `json:"polling"`
	Cycles    int64     `json:"cycles"`
	LastCycle time.Time `json:"last_cycle"`
}

// Agent is the poll cycle orchestrator.
type Agent struct {
	accounts   []models.Account
	interval   time.Duration
	guidPrefix string
	storage    poller.Poller
	namespace  poller.Poller
	reporter   *Reporter
	clock      clockz.Clock
	publisher  ReportPublisher
	logger     *zap.SugaredLogger
	telemetry  *Telemetry

	busy      atomic.Bool
	cycles    atomic.Int64
	lastCycle atomic.Int64

	mu           sync.Mutex
	stop         chan struct{}
	done         chan struct{}
	cancelCycles context.CancelFunc
	inFlight     sync.WaitGroup
}

// New creates an Agent from opts.
func New(opts Options) *Agent {
	clock := opts.Clock
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Agent{
		accounts:   opts.Accounts,
		interval:   opts.Interval,
		guidPrefix: opts.GUIDPrefix,
		storage:    opts.Storage,
		namespace:  opts.Namespace,
		reporter:   opts.Reporter,
		clock:      clock,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		telemetry:  opts.Telemetry,
	}
}

// Status reports whether a cycle is running and when the last one finished.
func (a *Agent) Status() Status {
	status := Status{
		Polling: a.busy.Load(),
		Cycles:  a.cycles.Load(),
	}
	if last := a.lastCycle.Load(); last != 0 {
		status.LastCycle = time.Unix(0, last)
	}
	return status
}

// Start runs a cycle right away and then one per interval until Stop is
// called or ctx is done.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done != nil {
		return errors.New("agent already started")
	}
	if a.interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", a.interval)
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	a.cancelCycles = cancel
	a.stop = make(chan struct{})
	a.done = make(chan struct{})

	go a.loop(cycleCtx, a.stop, a.done)
	return nil
}

// Stop ends the schedule and waits for the running cycle to finish.
//
// If ctx expires first the cycle is cancelled; it returns at its next
// cancellation check and Stop reports ctx.Err().
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	stop, done, cancel := a.stop, a.done, a.cancelCycles
	a.stop = nil
	a.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done

	finished := make(chan struct{})
	go func() {
		a.inFlight.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = ctx.Err()
		a.logger.Warnw("abandoning running poll cycle", "error", err)
		cancel()
		<-finished
	}
	cancel()
	a.logger.Info("Agent stopped")
	return err
}

func (a *Agent) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			a.tick(ctx)
		}
	}
}

// tick starts a cycle in the background unless one is already running.
func (a *Agent) tick(ctx context.Context) {
	if !a.busy.CompareAndSwap(false, true) {
		a.telemetry.skippedTicks.Inc()
		a.logger.Warn("previous poll cycle still running, skipping tick")
		return
	}

	a.inFlight.Add(1)
	go func() {
		defer a.inFlight.Done()
		defer a.busy.Store(false)
		a.runCycle(ctx)
	}()
}

// RunCycle runs one cycle synchronously. It returns ErrCycleInProgress when
// another cycle is running.
func (a *Agent) RunCycle(ctx context.Context) error {
	if !a.busy.CompareAndSwap(false, true) {
		return internalerrors.ErrCycleInProgress
	}
	defer a.busy.Store(false)

	a.runCycle(ctx)
	return nil
}

func (a *Agent) runCycle(ctx context.Context) {
	start := a.clock.Now()
	report := models.CycleReport{
		ID:        uuid.NewString(),
		StartedAt: start.Format(time.RFC3339),
	}
	logger := a.logger.With("cycle", report.ID)
	logger.Debugw("poll cycle started", "accounts", len(a.accounts))

	for _, account := range a.accounts {
		if ctx.Err() != nil {
			logger.Infow("poll cycle interrupted", "remaining", len(a.accounts)-report.Accounts)
			break
		}

		reported, err := a.pollAccount(ctx, account)
		report.Accounts++
		report.Metrics += reported
		if err != nil {
			a.telemetry.accountFailures.WithLabelValues(string(account.Kind)).Inc()
			report.Failures = append(report.Failures, account.String())
			logger.Errorw("account poll failed", "account", account.String(), "kind", account.Kind, "error", err)
			continue
		}
		logger.Debugw("account polled", "account", account.String(), "metrics", reported)
	}

	elapsed := a.clock.Now().Sub(start)
	report.DurationMs = elapsed.Milliseconds()

	a.cycles.Add(1)
	a.lastCycle.Store(a.clock.Now().UnixNano())
	a.telemetry.cycles.Inc()
	a.telemetry.cycleDuration.Observe(elapsed.Seconds())
	logger.Infow("poll cycle finished",
		"accounts", report.Accounts,
		"metrics", report.Metrics,
		"failures", len(report.Failures),
		"duration", elapsed,
	)

	if a.publisher != nil {
		a.publisher.Publish(report)
	}
}

// pollAccount dispatches account to the poller of its kind and flushes
// whatever was reported, also when the poll failed halfway.
func (a *Agent) pollAccount(ctx context.Context, account models.Account) (int, error) {
	var p poller.Poller
	switch account.Kind {
	case models.StorageQueue:
		p = a.storage
	case models.PubSubNamespace:
		p = a.namespace
	default:
		return 0, fmt.Errorf("%w: %q", internalerrors.ErrUnknownAccountKind, account.Kind)
	}

	component := models.NewComponent(account.SystemName, account.Kind, a.guidPrefix)
	reported := 0
	err := p.Poll(ctx, account, func(m models.Metric) {
		if a.reporter.Report(ctx, component, m) {
			reported++
		}
	})
	a.reporter.Flush(ctx, component)
	return reported, err
}
