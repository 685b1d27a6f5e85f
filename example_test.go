package queuemonitor_test

import (
	"context"
	"fmt"

	models "github.com/Schera-ole/queuemonitor/internal/model"
	"github.com/Schera-ole/queuemonitor/internal/repository"
	"github.com/Schera-ole/queuemonitor/internal/sink"
)

// Example of the metric names produced for a Service Bus subscription
func Example_subscriptionMetrics() {
	metrics := models.SubscriptionMetrics("ns1", models.SubscriptionSnapshot{
		TopicName:        "orders",
		SubscriptionName: "billing",
		ActiveCount:      3,
		DeadLetterCount:  1,
	})
	for _, m := range metrics {
		fmt.Printf("%s %v %s\n", m.Name, m.Value, m.Unit)
	}
	// Output:
	// servicebus/ns1/topic/orders/subscription/billing 3 messages
	// servicebus/ns1/topic/orders/subscription/billing/DeadLetter 1 messages
}

// Example of how reported metrics reach the memory repository
func Example_repositorySink() {
	storage := repository.NewMemStorage()
	s := sink.NewRepositorySink(storage)
	ctx := context.Background()

	component := models.NewComponent("billing", models.StorageQueue, "acme")
	metric := models.StorageQueueMetric("acct1", models.QueueSnapshot{QueueName: "invoices", ApproximateCount: 12})

	if err := s.ReportMetric(ctx, component, metric); err != nil {
		fmt.Printf("Error reporting metric: %v\n", err)
		return
	}
	// Nothing is stored before the component is flushed
	if _, err := storage.GetMetricByName(ctx, metric.Name); err != nil {
		fmt.Println("not flushed yet")
	}
	if err := s.Flush(ctx, component); err != nil {
		fmt.Printf("Error flushing: %v\n", err)
		return
	}

	stored, err := storage.GetMetricByName(ctx, "storage/acct1/invoices")
	if err != nil {
		fmt.Printf("Error getting metric: %v\n", err)
		return
	}
	fmt.Printf("%s: %v (%s)\n", stored.Name, stored.Value, stored.Component)
	// Output:
	// not flushed yet
	// storage/acct1/invoices: 12 (acme.queues.storage)
}
