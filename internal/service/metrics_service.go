// Package service provides the read side of the status API.
package service

import (
	"context"
	"time"

	"github.com/Schera-ole/queuemonitor/internal/agent"
	models "github.com/Schera-ole/queuemonitor/internal/model"
	"github.com/Schera-ole/queuemonitor/internal/repository"
)

// StatusProvider reports the state of the poll orchestrator.
type StatusProvider interface {
	Status() agent.Status
}

// Health is the body of the health endpoint.
type Health struct {
	State     string     `json:"state"`
	Cycles    int64      `json:"cycles"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
}

// States reported by Health.
const (
	StateIdle    = "idle"
	StatePolling = "polling"
)

// MetricsService exposes the latest metrics kept by the repository.
//
// It delegates operations to an underlying repository implementation.
type MetricsService struct {
	// repository is the underlying data storage implementation
	repository repository.Repository

	status StatusProvider
}

// NewMetricsService creates a new MetricsService with the specified repository.
func NewMetricsService(repo repository.Repository, status StatusProvider) *MetricsService {

	return &MetricsService{repository: repo, status: status}
}

// GetMetricByName retrieves a single metric by its hierarchical name, delegating to the repository implementation.
func (ms *MetricsService) GetMetricByName(ctx context.Context, name string) (models.StoredMetric, error) {

	return ms.repository.GetMetricByName(ctx, name)
}

// ListMetrics retrieves all metrics, delegating to the repository implementation.
func (ms *MetricsService) ListMetrics(ctx context.Context) ([]models.StoredMetric, error) {

	return ms.repository.ListMetrics(ctx)
}

// Ping checks the repository connection, delegating to the repository implementation.
func (ms *MetricsService) Ping(ctx context.Context) error {

	return ms.repository.Ping(ctx)
}

// Health reports whether a cycle is running and when the last one finished.
func (ms *MetricsService) Health() Health {
	status := ms.status.Status()
	health := Health{
		State:  StateIdle,
		Cycles: status.Cycles,
	}
	if status.Polling {
		health.State = StatePolling
	}
	if !status.LastCycle.IsZero() {
		last := status.LastCycle
		health.LastCycle = &last
	}
	return health
}
