package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	models "github.com/Schera-ole/queuemonitor/internal/model"
	"github.com/Schera-ole/queuemonitor/internal/sink"
)

// Reporter serializes every write into a sink.
//
// Sink errors are logged and counted, they never reach the caller.
type Reporter struct {
	mu           sync.Mutex
	sink         sink.Sink
	flushTimeout time.Duration
	logger       *zap.SugaredLogger
	telemetry    *Telemetry
}

// NewReporter wraps s. Flushes get flushTimeout even when the cycle context is
// already cancelled, so metrics gathered before a shutdown are still delivered.
func NewReporter(s sink.Sink, flushTimeout time.Duration, logger *zap.SugaredLogger, telemetry *Telemetry) *Reporter {
	return &Reporter{
		sink:         s,
		flushTimeout: flushTimeout,
		logger:       logger,
		telemetry:    telemetry,
	}
}

// Report hands metric to the sink and reports whether it was accepted.
func (r *Reporter) Report(ctx context.Context, component models.Component, metric models.Metric) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sink.ReportMetric(ctx, component, metric); err != nil {
		r.telemetry.sinkErrors.Inc()
		r.logger.Warnw("dropping metric", "component", component.GUID, "metric", metric.Name, "error", err)
		return false
	}
	r.telemetry.metricsReported.Inc()
	return true
}

// Flush delivers what a buffering sink holds for component.
func (r *Reporter) Flush(ctx context.Context, component models.Component) {
	f, ok := r.sink.(sink.Flusher)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.flushTimeout)
	defer cancel()
	if err := f.Flush(flushCtx, component); err != nil {
		r.telemetry.sinkErrors.Inc()
		r.logger.Errorw("flush failed", "component", component.GUID, "error", err)
	}
}
