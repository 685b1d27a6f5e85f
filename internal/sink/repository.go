package sink

import (
	"context"
	"fmt"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
	"github.com/Schera-ole/queuemonitor/internal/repository"
)

// RepositorySink stores the latest value of every metric in a repository.
type RepositorySink struct {
	repository repository.Repository
	buffer     buffer
}

// NewRepositorySink creates a sink writing to repo on every flush.
func NewRepositorySink(repo repository.Repository) *RepositorySink {
	return &RepositorySink{repository: repo}
}

// ReportMetric buffers metric until the component is flushed.
func (s *RepositorySink) ReportMetric(ctx context.Context, component models.Component, metric models.Metric) error {
	s.buffer.add(component, metric)
	return nil
}

// Flush writes the buffered metrics of component in one batch.
func (s *RepositorySink) Flush(ctx context.Context, component models.Component) error {
	metrics := s.buffer.take(component)
	if len(metrics) == 0 {
		return nil
	}
	if err := s.repository.SetMetrics(ctx, component, metrics); err != nil {
		return fmt.Errorf("%w: storing %d metrics of %s: %w", internalerrors.ErrSinkUnavailable, len(metrics), component.Name, err)
	}
	return nil
}
