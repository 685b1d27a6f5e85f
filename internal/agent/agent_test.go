package agent

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
	"github.com/Schera-ole/queuemonitor/internal/poller"
)

type recordedMetric struct {
	component models.Component
	metric    models.Metric
}

// recordingSink fails the test when it is entered concurrently.
type recordingSink struct {
	t       *testing.T
	active  atomic.Int32
	mu      sync.Mutex
	metrics []recordedMetric
	flushed []models.Component
	flushFn func(ctx context.Context) error
}

func (s *recordingSink) ReportMetric(ctx context.Context, c models.Component, m models.Metric) error {
	if s.active.Add(1) != 1 {
		s.t.Error("sink entered concurrently")
	}
	defer s.active.Add(-1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, recordedMetric{component: c, metric: m})
	return nil
}

func (s *recordingSink) Flush(ctx context.Context, c models.Component) error {
	s.mu.Lock()
	s.flushed = append(s.flushed, c)
	s.mu.Unlock()
	if s.flushFn != nil {
		return s.flushFn(ctx)
	}
	return nil
}

func (s *recordingSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.metrics))
	for _, r := range s.metrics {
		out = append(out, r.metric.Name+" "+r.metric.Unit+" "+strconv.FormatFloat(r.metric.Value, 'f', -1, 64))
	}
	return out
}

// funcPoller adapts a function to poller.Poller.
type funcPoller func(ctx context.Context, account models.Account, emit poller.Emit) error

func (f funcPoller) Poll(ctx context.Context, account models.Account, emit poller.Emit) error {
	return f(ctx, account, emit)
}

type capturePublisher struct {
	mu      sync.Mutex
	reports []models.CycleReport
}

func (c *capturePublisher) Publish(r models.CycleReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func (c *capturePublisher) last() models.CycleReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reports[len(c.reports)-1]
}

type fakeQueues struct {
	counts map[string]int64
	order  []string
}

func (f *fakeQueues) ListQueues(ctx context.Context, marker string) (poller.QueuePage, error) {
	return poller.QueuePage{Queues: f.order}, nil
}

func (f *fakeQueues) ApproximateMessageCount(ctx context.Context, queue string) (int64, error) {
	return f.counts[queue], nil
}

type fakeNamespace struct{}

func (fakeNamespace) ListQueues(ctx context.Context) ([]models.NamespaceQueueSnapshot, error) {
	return nil, nil
}

func (fakeNamespace) ListTopics(ctx context.Context) ([]string, error) {
	return []string{"t1"}, nil
}

func (fakeNamespace) ListSubscriptions(ctx context.Context, topic string) ([]models.SubscriptionSnapshot, error) {
	return []models.SubscriptionSnapshot{{TopicName: "t1", SubscriptionName: "s1", ActiveCount: 3, DeadLetterCount: 1}}, nil
}

func newTestAgent(t *testing.T, opts Options, s *recordingSink) (*Agent, *Telemetry) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	telemetry := NewTelemetry(prometheus.NewRegistry())
	opts.Logger = logger
	opts.Telemetry = telemetry
	opts.Reporter = NewReporter(s, time.Second, logger, telemetry)
	if opts.GUIDPrefix == "" {
		opts.GUIDPrefix = "acme"
	}
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	return New(opts), telemetry
}

func TestRunCycle_StorageEndToEnd(t *testing.T) {
	svc := &fakeQueues{order: []string{"q1", "q2"}, counts: map[string]int64{"q1": 5, "q2": 0}}
	s := &recordingSink{t: t}
	a, telemetry := newTestAgent(t, Options{
		Accounts: []models.Account{{SystemName: "billing", Kind: models.StorageQueue, AccountName: "acct1", ConnectionString: "cs"}},
		Storage: poller.NewStoragePoller(func(string) (poller.QueueService, error) { return svc, nil },
			4, time.Second, zap.NewNop().Sugar()),
	}, s)

	require.NoError(t, a.RunCycle(context.Background()))

	assert.Equal(t, []string{"storage/acct1/q1 messages 5", "storage/acct1/q2 messages 0"}, s.lines())
	assert.Equal(t, []models.Component{{Name: "billing", GUID: "acme.queues.storage"}}, s.flushed)
	assert.Equal(t, float64(2), testutil.ToFloat64(telemetry.metricsReported))
	assert.Equal(t, int64(1), a.Status().Cycles)
	assert.False(t, a.Status().LastCycle.IsZero())
}

func TestRunCycle_NamespaceEndToEnd(t *testing.T) {
	s := &recordingSink{t: t}
	a, _ := newTestAgent(t, Options{
		Accounts: []models.Account{{SystemName: "billing", Kind: models.PubSubNamespace, AccountName: "ns1", ConnectionString: "cs"}},
		Namespace: poller.NewNamespacePoller(func(string) (poller.NamespaceService, error) { return fakeNamespace{}, nil },
			time.Second, zap.NewNop().Sugar()),
	}, s)

	require.NoError(t, a.RunCycle(context.Background()))

	assert.Equal(t, []string{
		"servicebus/ns1/topic/t1/subscription/s1 messages 3",
		"servicebus/ns1/topic/t1/subscription/s1/DeadLetter messages 1",
	}, s.lines())
	assert.Equal(t, "acme.queues.servicebus", s.metrics[0].component.GUID)
}

func TestRunCycle_FailedAccountDoesNotStopCycle(t *testing.T) {
	var polled []string
	p := funcPoller(func(ctx context.Context, account models.Account, emit poller.Emit) error {
		polled = append(polled, account.AccountName)
		if account.AccountName == "broken" {
			emit(models.Metric{Name: "storage/broken/partial", Unit: models.UnitMessages, Value: 1})
			return internalerrors.ErrAccountConfig
		}
		emit(models.Metric{Name: "storage/" + account.AccountName + "/q", Unit: models.UnitMessages, Value: 2})
		return nil
	})
	s := &recordingSink{t: t}
	publisher := &capturePublisher{}
	a, telemetry := newTestAgent(t, Options{
		Accounts: []models.Account{
			{SystemName: "a", Kind: models.StorageQueue, AccountName: "broken"},
			{SystemName: "a", Kind: models.StorageQueue, AccountName: "healthy"},
		},
		Storage:   p,
		Publisher: publisher,
	}, s)

	require.NoError(t, a.RunCycle(context.Background()))
	// the failing account is retried on the next cycle
	require.NoError(t, a.RunCycle(context.Background()))

	assert.Equal(t, []string{"broken", "healthy", "broken", "healthy"}, polled)
	assert.Len(t, s.metrics, 4, "metrics emitted before a failure are still reported")
	assert.Equal(t, float64(2), testutil.ToFloat64(telemetry.accountFailures.WithLabelValues("storage")))

	report := publisher.last()
	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, 2, report.Metrics)
	assert.Equal(t, []string{"storage/broken"}, report.Failures)
	assert.NotEmpty(t, report.ID)
}

func TestRunCycle_UnknownKind(t *testing.T) {
	s := &recordingSink{t: t}
	publisher := &capturePublisher{}
	a, _ := newTestAgent(t, Options{
		Accounts:  []models.Account{{SystemName: "a", Kind: "kafka", AccountName: "x"}},
		Publisher: publisher,
	}, s)

	require.NoError(t, a.RunCycle(context.Background()))
	assert.Equal(t, []string{"kafka/x"}, publisher.last().Failures)
}

func TestRunCycle_RejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	p := funcPoller(func(ctx context.Context, account models.Account, emit poller.Emit) error {
		close(entered)
		<-release
		return nil
	})
	s := &recordingSink{t: t}
	a, _ := newTestAgent(t, Options{
		Accounts: []models.Account{{SystemName: "a", Kind: models.StorageQueue, AccountName: "x"}},
		Storage:  p,
	}, s)

	errCh := make(chan error, 1)
	go func() { errCh <- a.RunCycle(context.Background()) }()
	<-entered

	assert.True(t, a.Status().Polling)
	assert.ErrorIs(t, a.RunCycle(context.Background()), internalerrors.ErrCycleInProgress)

	close(release)
	require.NoError(t, <-errCh)
	assert.False(t, a.Status().Polling)
}

func TestStart_SkipsTicksWhileBusy(t *testing.T) {
	var running, peak, calls atomic.Int32
	p := funcPoller(func(ctx context.Context, account models.Account, emit poller.Emit) error {
		calls.Add(1)
		n := running.Add(1)
		defer running.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		select {
		case <-time.After(60 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	})
	s := &recordingSink{t: t}
	a, telemetry := newTestAgent(t, Options{
		Accounts: []models.Account{{SystemName: "a", Kind: models.StorageQueue, AccountName: "x"}},
		Storage:  p,
		Interval: 10 * time.Millisecond,
	}, s)

	require.NoError(t, a.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	assert.Equal(t, int32(1), peak.Load())
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
	assert.Greater(t, testutil.ToFloat64(telemetry.skippedTicks), float64(0))
}

func TestStart_Twice(t *testing.T) {
	s := &recordingSink{t: t}
	a, _ := newTestAgent(t, Options{Storage: funcPoller(func(context.Context, models.Account, poller.Emit) error { return nil })}, s)

	require.NoError(t, a.Start(context.Background()))
	assert.Error(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()), "stopping twice is a no-op")
}

func TestStop_WaitsForRunningCycle(t *testing.T) {
	entered := make(chan struct{})
	var finished atomic.Bool
	p := funcPoller(func(ctx context.Context, account models.Account, emit poller.Emit) error {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		emit(models.Metric{Name: "storage/x/q", Unit: models.UnitMessages, Value: 1})
		finished.Store(true)
		return nil
	})
	s := &recordingSink{t: t}
	a, _ := newTestAgent(t, Options{
		Accounts: []models.Account{{SystemName: "a", Kind: models.StorageQueue, AccountName: "x"}},
		Storage:  p,
	}, s)

	require.NoError(t, a.Start(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))

	assert.True(t, finished.Load())
	assert.Len(t, s.lines(), 1)
}

func TestStop_AbandonsCycleAfterDeadline(t *testing.T) {
	entered := make(chan struct{})
	var cancelled atomic.Bool
	var polled atomic.Int32
	p := funcPoller(func(ctx context.Context, account models.Account, emit poller.Emit) error {
		if polled.Add(1) == 1 {
			close(entered)
		}
		emit(models.Metric{Name: "storage/" + account.AccountName + "/q", Unit: models.UnitMessages})
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})

	var flushErr atomic.Value
	s := &recordingSink{t: t, flushFn: func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			flushErr.Store(err)
		}
		return nil
	}}
	a, _ := newTestAgent(t, Options{
		Accounts: []models.Account{
			{SystemName: "a", Kind: models.StorageQueue, AccountName: "first"},
			{SystemName: "a", Kind: models.StorageQueue, AccountName: "second"},
		},
		Storage: p,
	}, s)

	require.NoError(t, a.Start(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := a.Stop(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, cancelled.Load())
	assert.Equal(t, int32(1), polled.Load(), "no further accounts are polled after cancellation")
	assert.Len(t, s.flushed, 1, "metrics gathered before the cancellation are flushed")
	assert.Nil(t, flushErr.Load(), "the flush context outlives the cycle context")
}

func TestReporter_SerializesWrites(t *testing.T) {
	s := &recordingSink{t: t}
	logger := zap.NewNop().Sugar()
	r := NewReporter(s, time.Second, logger, NewTelemetry(prometheus.NewRegistry()))
	component := models.Component{Name: "a", GUID: "g"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Report(context.Background(), component, models.Metric{Name: "q", Unit: models.UnitMessages, Value: float64(i)})
		}()
	}
	wg.Wait()

	assert.Len(t, s.lines(), 50)
}

type failingSink struct{}

func (failingSink) ReportMetric(context.Context, models.Component, models.Metric) error {
	return internalerrors.ErrSinkUnavailable
}

func TestReporter_SinkErrorsAreSwallowed(t *testing.T) {
	telemetry := NewTelemetry(prometheus.NewRegistry())
	r := NewReporter(failingSink{}, time.Second, zap.NewNop().Sugar(), telemetry)
	component := models.Component{Name: "a", GUID: "g"}

	assert.False(t, r.Report(context.Background(), component, models.Metric{Name: "q"}))
	r.Flush(context.Background(), component)
	assert.Equal(t, float64(1), testutil.ToFloat64(telemetry.sinkErrors))
}

func TestReporter_FlushErrorIsCounted(t *testing.T) {
	telemetry := NewTelemetry(prometheus.NewRegistry())
	s := &recordingSink{t: t, flushFn: func(context.Context) error { return errors.New("backend down") }}
	r := NewReporter(s, time.Second, zap.NewNop().Sugar(), telemetry)

	r.Flush(context.Background(), models.Component{Name: "a", GUID: "g"})
	assert.Equal(t, float64(1), testutil.ToFloat64(telemetry.sinkErrors))
}
