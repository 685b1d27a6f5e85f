// Package sink delivers metrics to monitoring backends.
//
// Sinks are not safe for concurrent use; callers serialize access (see
// agent.Reporter). Buffering sinks also implement Flusher and only deliver
// when flushed.
package sink

import (
	"context"
	"errors"

	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// Sink accepts a single metric reported under component.
type Sink interface {
	ReportMetric(ctx context.Context, component models.Component, metric models.Metric) error
}

// Flusher is implemented by sinks that buffer metrics until the end of a poll.
type Flusher interface {
	Flush(ctx context.Context, component models.Component) error
}

// buffer collects metrics per component between flushes.
type buffer struct {
	pending map[models.Component][]models.Metric
}

func (b *buffer) add(component models.Component, metric models.Metric) {
	if b.pending == nil {
		b.pending = make(map[models.Component][]models.Metric)
	}
	b.pending[component] = append(b.pending[component], metric)
}

// take removes and returns the metrics buffered for component.
func (b *buffer) take(component models.Component) []models.Metric {
	metrics := b.pending[component]
	delete(b.pending, component)
	return metrics
}

// Multi fans every call out to all of its sinks.
type Multi []Sink

// ReportMetric reports to every sink and joins their errors.
func (m Multi) ReportMetric(ctx context.Context, component models.Component, metric models.Metric) error {
	var errs []error
	for _, s := range m {
		if err := s.ReportMetric(ctx, component, metric); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every sink that buffers.
func (m Multi) Flush(ctx context.Context, component models.Component) error {
	var errs []error
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(ctx, component); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
