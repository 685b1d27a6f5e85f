package poller

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// azureQueueService adapts an azqueue service client to QueueService.
type azureQueueService struct {
	client *azqueue.ServiceClient
}

// NewAzureQueueService parses a storage connection string into a QueueService.
func NewAzureQueueService(connectionString string) (QueueService, error) {
	client, err := azqueue.NewServiceClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, err
	}
	return &azureQueueService{client: client}, nil
}

func (s *azureQueueService) ListQueues(ctx context.Context, marker string) (QueuePage, error) {
	opts := &azqueue.ListQueuesOptions{}
	if marker != "" {
		opts.Marker = &marker
	}

	// A fresh pager per page keeps the continuation marker in our hands.
	resp, err := s.client.NewListQueuesPager(opts).NextPage(ctx)
	if err != nil {
		return QueuePage{}, err
	}

	page := QueuePage{Queues: make([]string, 0, len(resp.Queues))}
	for _, q := range resp.Queues {
		if q != nil && q.Name != nil {
			page.Queues = append(page.Queues, *q.Name)
		}
	}
	if resp.NextMarker != nil {
		page.NextMarker = *resp.NextMarker
	}
	return page, nil
}

func (s *azureQueueService) ApproximateMessageCount(ctx context.Context, queue string) (int64, error) {
	resp, err := s.client.NewQueueClient(queue).GetProperties(ctx, nil)
	if err != nil {
		return 0, err
	}
	if resp.ApproximateMessagesCount == nil {
		return 0, nil
	}
	return int64(*resp.ApproximateMessagesCount), nil
}

// azureNamespaceService adapts a Service Bus administration client to NamespaceService.
type azureNamespaceService struct {
	client *admin.Client
}

// NewAzureNamespaceService parses a Service Bus connection string into a NamespaceService.
func NewAzureNamespaceService(connectionString string) (NamespaceService, error) {
	client, err := admin.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, err
	}
	return &azureNamespaceService{client: client}, nil
}

func (s *azureNamespaceService) ListQueues(ctx context.Context) ([]models.NamespaceQueueSnapshot, error) {
	var snapshots []models.NamespaceQueueSnapshot
	err := drain(ctx, s.client.NewListQueuesRuntimePropertiesPager(nil), func(page admin.ListQueuesRuntimePropertiesResponse) {
		for _, q := range page.QueueRuntimeProperties {
			snapshots = append(snapshots, models.NamespaceQueueSnapshot{
				QueueName:       q.QueueName,
				ActiveCount:     int64(q.ActiveMessageCount),
				DeadLetterCount: int64(q.DeadLetterMessageCount),
			})
		}
	})
	return snapshots, err
}

func (s *azureNamespaceService) ListTopics(ctx context.Context) ([]string, error) {
	var topics []string
	err := drain(ctx, s.client.NewListTopicsPager(nil), func(page admin.ListTopicsResponse) {
		for _, t := range page.Topics {
			topics = append(topics, t.TopicName)
		}
	})
	return topics, err
}

func (s *azureNamespaceService) ListSubscriptions(ctx context.Context, topic string) ([]models.SubscriptionSnapshot, error) {
	var snapshots []models.SubscriptionSnapshot
	err := drain(ctx, s.client.NewListSubscriptionsRuntimePropertiesPager(topic, nil), func(page admin.ListSubscriptionsRuntimePropertiesResponse) {
		for _, sub := range page.SubscriptionRuntimeProperties {
			snapshots = append(snapshots, models.SubscriptionSnapshot{
				TopicName:        topic,
				SubscriptionName: sub.SubscriptionName,
				ActiveCount:      int64(sub.ActiveMessageCount),
				DeadLetterCount:  int64(sub.DeadLetterMessageCount),
			})
		}
	})
	return snapshots, err
}

// drain reads every page of pager.
func drain[T any](ctx context.Context, pager *runtime.Pager[T], each func(T)) error {
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		each(page)
	}
	return nil
}
