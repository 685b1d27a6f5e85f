// Package poller fetches queue and subscription counters from Azure accounts.
//
// Each poller turns one account into a stream of metrics. Remote failures on a
// single entity are logged and the entity is skipped, only failures that make
// the whole account unreadable are returned to the caller.
package poller

import (
	"context"
	"time"

	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// Emit receives every metric a poller produces. Pollers call it from a single
// goroutine, in order.
type Emit func(models.Metric)

// Poller polls one account.
type Poller interface {
	Poll(ctx context.Context, account models.Account, emit Emit) error
}

// QueuePage is one page of a storage queue listing.
type QueuePage struct {
	// Queues holds the queue names of this page in listing order
	Queues []string

	// NextMarker is the continuation token, empty on the last page
	NextMarker string
}

// QueueService is the part of a storage account client the storage poller uses.
type QueueService interface {
	// ListQueues returns the page starting at marker; an empty marker is the first page.
	ListQueues(ctx context.Context, marker string) (QueuePage, error)

	// ApproximateMessageCount returns the queue depth, 0 when the service does not report one.
	ApproximateMessageCount(ctx context.Context, queue string) (int64, error)
}

// NamespaceService is the part of a Service Bus administration client the namespace poller uses.
type NamespaceService interface {
	ListQueues(ctx context.Context) ([]models.NamespaceQueueSnapshot, error)
	ListTopics(ctx context.Context) ([]string, error)
	ListSubscriptions(ctx context.Context, topic string) ([]models.SubscriptionSnapshot, error)
}

// StorageClientFactory builds a QueueService from a connection string.
type StorageClientFactory func(connectionString string) (QueueService, error)

// NamespaceClientFactory builds a NamespaceService from a connection string.
type NamespaceClientFactory func(connectionString string) (NamespaceService, error)

// callContext bounds a single remote call; a zero timeout only inherits ctx.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
