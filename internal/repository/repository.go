// Package repository keeps the latest reported value of every metric.
//
// Only the current value per metric name is stored; a new report replaces the
// previous one.
package repository

import (
	"context"

	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// Repository is the storage behind the latest value sinks and the status API.
type Repository interface {
	// SetMetrics replaces the stored values of metrics reported under component.
	SetMetrics(ctx context.Context, component models.Component, metrics []models.Metric) error

	// GetMetricByName returns the stored value of a single metric.
	GetMetricByName(ctx context.Context, name string) (models.StoredMetric, error)

	// ListMetrics returns every stored metric ordered by name.
	ListMetrics(ctx context.Context) ([]models.StoredMetric, error)

	// Ping checks the storage connection.
	Ping(ctx context.Context) error

	// Close releases any resources held by the storage.
	Close() error
}
