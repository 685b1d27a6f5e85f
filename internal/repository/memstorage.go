package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// MemStorage implements the Repository interface using in-memory storage.
type MemStorage struct {
	// mu provides thread-safe access to the metrics map
	mu sync.RWMutex

	// metrics stores the latest value per metric name
	metrics map[string]models.StoredMetric

	// now is replaced in tests
	now func() time.Time
}

// NewMemStorage creates a new in-memory storage instance.
func NewMemStorage() *MemStorage {

	return &MemStorage{
		metrics: make(map[string]models.StoredMetric),
		now:     time.Now,
	}
}

// SetMetrics stores the given metrics, replacing any previous value with the same name.
func (ms *MemStorage) SetMetrics(ctx context.Context, component models.Component, metrics []models.Metric) error {

	ms.mu.Lock()
	defer ms.mu.Unlock()
	now := ms.now()
	for _, m := range metrics {
		ms.metrics[m.Name] = models.StoredMetric{
			Component: component.GUID,
			Name:      m.Name,
			Unit:      m.Unit,
			Value:     m.Value,
			UpdatedAt: now,
		}
	}
	return nil
}

// GetMetricByName retrieves a single metric by its name.
func (ms *MemStorage) GetMetricByName(ctx context.Context, name string) (models.StoredMetric, error) {

	ms.mu.RLock()
	defer ms.mu.RUnlock()
	metric, exists := ms.metrics[name]
	if !exists {
		return models.StoredMetric{}, internalerrors.ErrMetricNotFound
	}
	return metric, nil
}

// ListMetrics returns all metrics stored in memory ordered by name.
func (ms *MemStorage) ListMetrics(ctx context.Context) ([]models.StoredMetric, error) {

	ms.mu.RLock()
	defer ms.mu.RUnlock()
	result := make([]models.StoredMetric, 0, len(ms.metrics))
	for _, m := range ms.metrics {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Ping checks the health of the memory storage.
//
// For MemStorage, this always returns nil since there are no external dependencies.
func (ms *MemStorage) Ping(ctx context.Context) error {
	return nil
}

// Close releases any resources held by the memory storage.
func (ms *MemStorage) Close() error {

	return nil
}
