// Package models defines the data structures used throughout the queue monitor.
package models

import (
	"fmt"
	"time"
)

// Kind tags the flavor of a monitored account.
type Kind string

const (
	// StorageQueue is an Azure Storage account whose queues are polled for depth.
	StorageQueue Kind = "storage"

	// PubSubNamespace is a Service Bus namespace with queues, topics and subscriptions.
	PubSubNamespace Kind = "servicebus"
)

// UnitMessages is the unit every queue metric is reported in.
const UnitMessages = "messages"

// deadLetterSuffix is appended to active-count names for the dead-letter series.
const deadLetterSuffix = "/DeadLetter"

// Valid reports whether k is one of the known account kinds.
func (k Kind) Valid() bool {
	return k == StorageQueue || k == PubSubNamespace
}

// Account is one monitored account as loaded from configuration.
type Account struct {
	// SystemName is the human readable name of the reporting component
	SystemName string `json:"systemName" mapstructure:"systemName"`

	// Kind selects which poller handles the account
	Kind Kind `json:"type" mapstructure:"type"`

	// AccountName is used as the second segment of every metric name
	AccountName string `json:"accountName" mapstructure:"accountName"`

	// ConnectionString carries the credentials, it is never logged
	ConnectionString string `json:"connectionString" mapstructure:"connectionString"`
}

// String identifies the account without leaking credentials.
func (a Account) String() string {
	return fmt.Sprintf("%s/%s", a.Kind, a.AccountName)
}

// QueueSnapshot is the depth of one storage queue at poll time.
type QueueSnapshot struct {
	QueueName        string
	ApproximateCount int64
}

// NamespaceQueueSnapshot is the state of one Service Bus queue at poll time.
type NamespaceQueueSnapshot struct {
	QueueName       string
	ActiveCount     int64
	DeadLetterCount int64
}

// SubscriptionSnapshot is the state of one topic subscription at poll time.
type SubscriptionSnapshot struct {
	TopicName        string
	SubscriptionName string
	ActiveCount      int64
	DeadLetterCount  int64
}

// Metric is a single measurement handed to a sink.
type Metric struct {
	// Name is the hierarchical path, stable across polls
	Name string `json:"name"`

	// Unit is the measurement unit (always "messages" for queue metrics)
	Unit string `json:"unit"`

	// Value is the measured value
	Value float64 `json:"value"`
}

// Component is the identity a metric stream is reported under.
type Component struct {
	// Name is derived from the account's system name
	Name string `json:"name"`

	// GUID classifies the stream per poller flavor
	GUID string `json:"guid"`
}

// NewComponent builds the identity for a system name and kind using guidPrefix.
func NewComponent(systemName string, kind Kind, guidPrefix string) Component {
	return Component{
		Name: systemName,
		GUID: fmt.Sprintf("%s.queues.%s", guidPrefix, kind),
	}
}

// StorageQueueMetric returns the depth metric of a storage queue.
func StorageQueueMetric(account string, s QueueSnapshot) Metric {
	return Metric{
		Name:  fmt.Sprintf("storage/%s/%s", account, s.QueueName),
		Unit:  UnitMessages,
		Value: float64(s.ApproximateCount),
	}
}

// NamespaceQueueMetrics returns the active and dead-letter metrics of a Service Bus queue.
func NamespaceQueueMetrics(account string, s NamespaceQueueSnapshot) []Metric {
	name := fmt.Sprintf("servicebus/%s/%s", account, s.QueueName)
	return activeAndDeadLetter(name, s.ActiveCount, s.DeadLetterCount)
}

// SubscriptionMetrics returns the active and dead-letter metrics of a topic subscription.
func SubscriptionMetrics(account string, s SubscriptionSnapshot) []Metric {
	name := fmt.Sprintf("servicebus/%s/topic/%s/subscription/%s", account, s.TopicName, s.SubscriptionName)
	return activeAndDeadLetter(name, s.ActiveCount, s.DeadLetterCount)
}

func activeAndDeadLetter(name string, active, deadLetter int64) []Metric {
	return []Metric{
		{Name: name, Unit: UnitMessages, Value: float64(active)},
		{Name: name + deadLetterSuffix, Unit: UnitMessages, Value: float64(deadLetter)},
	}
}

// CycleReport summarizes one poll cycle for the audit trail.
type CycleReport struct {
	// ID is unique per cycle and appears in every log line of that cycle
	ID string `json:"id"`

	// StartedAt is the cycle start in RFC 3339 format
	StartedAt string `json:"started_at"`

	// DurationMs is the wall time of the cycle in milliseconds
	DurationMs int64 `json:"duration_ms"`

	// Accounts is the number of accounts visited
	Accounts int `json:"accounts"`

	// Metrics is the number of metrics accepted by the sink
	Metrics int `json:"metrics"`

	// Failures lists the accounts whose poll returned an error
	Failures []string `json:"failures,omitempty"`
}

// StoredMetric is the latest value of a metric as kept by a repository.
type StoredMetric struct {
	// Component is the GUID of the stream the metric was reported under
	Component string `json:"component"`

	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
