package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	middlewareinternal "github.com/Schera-ole/queuemonitor/internal/middleware"
	"github.com/Schera-ole/queuemonitor/internal/service"
)

// Router builds the status API on top of metricService. Self metrics are
// served from gatherer.
func Router(
	metricService *service.MetricsService,
	gatherer prometheus.Gatherer,
	logger *zap.SugaredLogger,
) chi.Router {
	router := chi.NewRouter()
	router.Use(middlewareinternal.LoggingMiddleware(logger))
	router.Use(middleware.Compress(5))
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(15 * time.Second))
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		GetListHandler(w, r, metricService, logger)
	})
	router.Get("/value/*", func(w http.ResponseWriter, r *http.Request) {
		GetHandler(w, r, metricService)
	})
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		PingHandler(w, r, metricService, logger)
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metricService.Health())
	})
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{DisableCompression: true}))
	return router
}

// GetListHandler lists the latest value of every metric.
func GetListHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService, logger *zap.SugaredLogger) {
	metrics, err := metricService.ListMetrics(r.Context())
	if err != nil {
		logger.Errorw("error listing metrics", "error", err)
		http.Error(w, "Failed to list metrics: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// GetHandler returns one metric by the hierarchical name following /value/.
func GetHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService) {
	metricName := strings.Trim(chi.URLParam(r, "*"), "/")
	if metricName == "" {
		http.Error(w, "Metric name not found", http.StatusNotFound)
		return
	}
	metric, err := metricService.GetMetricByName(r.Context(), metricName)
	if errors.Is(err, internalerrors.ErrMetricNotFound) {
		http.Error(w, "Metric name not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, metric)
}

// PingHandler checks the repository behind the status API.
func PingHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService, logger *zap.SugaredLogger) {
	if err := metricService.Ping(r.Context()); err != nil {
		logger.Errorw("repository ping failed", "error", err)
		http.Error(w, "Failed to connect to repository: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
