package poller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// NamespacePoller reports active and dead-letter counts of every queue and
// topic subscription in a Service Bus namespace.
type NamespacePoller struct {
	newClient NamespaceClientFactory
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

// NewNamespacePoller creates a NamespacePoller whose listing calls are bounded by timeout.
func NewNamespacePoller(newClient NamespaceClientFactory, timeout time.Duration, logger *zap.SugaredLogger) *NamespacePoller {
	return &NamespacePoller{
		newClient: newClient,
		timeout:   timeout,
		logger:    logger,
	}
}

// Poll emits queue metrics first, then subscription metrics topic by topic.
//
// A failed queue listing does not prevent topics from being polled, and a
// topic whose subscriptions cannot be listed is skipped. Only a failed topic
// listing is returned, after the queues have been emitted.
func (p *NamespacePoller) Poll(ctx context.Context, account models.Account, emit Emit) error {
	client, err := p.newClient(account.ConnectionString)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", internalerrors.ErrAccountConfig, account, err)
	}

	queues, err := p.listQueues(ctx, client)
	if err != nil {
		p.logger.Warnw("skipping namespace queues",
			"account", account.String(),
			"error", fmt.Errorf("%w: %v", internalerrors.ErrFetchFailed, err),
		)
	}
	for _, q := range queues {
		for _, m := range models.NamespaceQueueMetrics(account.AccountName, q) {
			emit(m)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	topics, err := p.listTopics(ctx, client)
	if err != nil {
		return fmt.Errorf("%w: listing topics of %s: %v", internalerrors.ErrFetchFailed, account, err)
	}

	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		subs, err := p.listSubscriptions(ctx, client, topic)
		if err != nil {
			p.logger.Warnw("skipping topic",
				"account", account.String(),
				"topic", topic,
				"error", fmt.Errorf("%w: %v", internalerrors.ErrFetchFailed, err),
			)
			continue
		}
		for _, s := range subs {
			for _, m := range models.SubscriptionMetrics(account.AccountName, s) {
				emit(m)
			}
		}
	}
	return nil
}

func (p *NamespacePoller) listQueues(ctx context.Context, client NamespaceService) ([]models.NamespaceQueueSnapshot, error) {
	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()
	return client.ListQueues(callCtx)
}

func (p *NamespacePoller) listTopics(ctx context.Context, client NamespaceService) ([]string, error) {
	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()
	return client.ListTopics(callCtx)
}

func (p *NamespacePoller) listSubscriptions(ctx context.Context, client NamespaceService, topic string) ([]models.SubscriptionSnapshot, error) {
	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()
	return client.ListSubscriptions(callCtx, topic)
}
