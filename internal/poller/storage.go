package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// StoragePoller reports the approximate depth of every queue in a storage account.
type StoragePoller struct {
	newClient StorageClientFactory
	workers   int
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

// NewStoragePoller creates a StoragePoller that fetches at most workers queue
// depths at a time, each bounded by timeout.
func NewStoragePoller(newClient StorageClientFactory, workers int, timeout time.Duration, logger *zap.SugaredLogger) *StoragePoller {
	if workers <= 0 {
		workers = 1
	}
	return &StoragePoller{
		newClient: newClient,
		workers:   workers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Poll walks the full queue listing of account page by page.
//
// Depths of a page are fetched in parallel; the page is emitted only once all of
// its fetches have returned, sequentially and in listing order. Queues whose
// fetch fails are left out.
func (p *StoragePoller) Poll(ctx context.Context, account models.Account, emit Emit) error {
	client, err := p.newClient(account.ConnectionString)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", internalerrors.ErrAccountConfig, account, err)
	}

	marker := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.listPage(ctx, client, marker)
		if err != nil {
			return fmt.Errorf("%w: listing queues of %s: %v", internalerrors.ErrFetchFailed, account, err)
		}

		for _, snapshot := range p.fetchPage(ctx, client, account, page.Queues) {
			emit(models.StorageQueueMetric(account.AccountName, snapshot))
		}

		if page.NextMarker == "" {
			return nil
		}
		marker = page.NextMarker
	}
}

func (p *StoragePoller) listPage(ctx context.Context, client QueueService, marker string) (QueuePage, error) {
	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()
	return client.ListQueues(callCtx, marker)
}

func (p *StoragePoller) fetchPage(ctx context.Context, client QueueService, account models.Account, queues []string) []models.QueueSnapshot {
	results := make([]*models.QueueSnapshot, len(queues))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, name := range queues {
		g.Go(func() error {
			callCtx, cancel := callContext(ctx, p.timeout)
			defer cancel()

			count, err := client.ApproximateMessageCount(callCtx, name)
			if err != nil {
				p.logFetchError(account, name, err)
				return nil
			}
			if count < 0 {
				count = 0
			}
			results[i] = &models.QueueSnapshot{QueueName: name, ApproximateCount: count}
			return nil
		})
	}
	// fetch errors are logged per queue, never returned
	_ = g.Wait()

	snapshots := make([]models.QueueSnapshot, 0, len(queues))
	for _, s := range results {
		if s != nil {
			snapshots = append(snapshots, *s)
		}
	}
	return snapshots
}

func (p *StoragePoller) logFetchError(account models.Account, queue string, err error) {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		p.logger.Debugw("queue disappeared during scan", "account", account.String(), "queue", queue)
		return
	}
	p.logger.Warnw("skipping queue",
		"account", account.String(),
		"queue", queue,
		"error", fmt.Errorf("%w: %v", internalerrors.ErrFetchFailed, err),
	)
}
