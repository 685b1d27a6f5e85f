package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	models "github.com/Schera-ole/queuemonitor/internal/model"
)

var errBoom = errors.New("boom")

// fakeQueueService serves pages keyed by marker and depths keyed by queue name.
type fakeQueueService struct {
	pages    map[string]QueuePage
	counts   map[string]int64
	failing  map[string]error
	listErr  error
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32

	mu      sync.Mutex
	markers []string
}

func (f *fakeQueueService) ListQueues(ctx context.Context, marker string) (QueuePage, error) {
	f.mu.Lock()
	f.markers = append(f.markers, marker)
	f.mu.Unlock()
	if f.listErr != nil {
		return QueuePage{}, f.listErr
	}
	return f.pages[marker], nil
}

func (f *fakeQueueService) ApproximateMessageCount(ctx context.Context, queue string) (int64, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err, ok := f.failing[queue]; ok {
		return 0, err
	}
	return f.counts[queue], nil
}

func storageFactory(svc QueueService) StorageClientFactory {
	return func(string) (QueueService, error) { return svc, nil }
}

type fakeNamespaceService struct {
	queues        []models.NamespaceQueueSnapshot
	queuesErr     error
	topics        []string
	topicsErr     error
	subscriptions map[string][]models.SubscriptionSnapshot
	failingTopics map[string]error
}

func (f *fakeNamespaceService) ListQueues(ctx context.Context) ([]models.NamespaceQueueSnapshot, error) {
	return f.queues, f.queuesErr
}

func (f *fakeNamespaceService) ListTopics(ctx context.Context) ([]string, error) {
	return f.topics, f.topicsErr
}

func (f *fakeNamespaceService) ListSubscriptions(ctx context.Context, topic string) ([]models.SubscriptionSnapshot, error) {
	if err, ok := f.failingTopics[topic]; ok {
		return nil, err
	}
	return f.subscriptions[topic], nil
}

func namespaceFactory(svc NamespaceService) NamespaceClientFactory {
	return func(string) (NamespaceService, error) { return svc, nil }
}

// collect returns an Emit that appends into the returned slice.
func collect() (Emit, *[]models.Metric) {
	var out []models.Metric
	return func(m models.Metric) { out = append(out, m) }, &out
}
