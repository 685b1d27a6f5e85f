package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Schera-ole/queuemonitor/internal/agent"
	"github.com/Schera-ole/queuemonitor/internal/audit"
	"github.com/Schera-ole/queuemonitor/internal/config"
	"github.com/Schera-ole/queuemonitor/internal/handler"
	"github.com/Schera-ole/queuemonitor/internal/migration"
	models "github.com/Schera-ole/queuemonitor/internal/model"
	"github.com/Schera-ole/queuemonitor/internal/poller"
	"github.com/Schera-ole/queuemonitor/internal/repository"
	"github.com/Schera-ole/queuemonitor/internal/service"
	"github.com/Schera-ole/queuemonitor/internal/sink"
)

var buildVersion = "N/A"

const (
	shutdownTimeout = 10 * time.Second
	auditBuffer     = 16
)

func main() {
	agentConfig, err := config.NewAgentConfig(os.Args[1:])
	if err != nil {
		log.Fatal("Failed to parse configuration: ", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, agentConfig, sugar); err != nil {
		sugar.Fatalw("Agent failed", "error", err)
	}
}

// run wires the agent and blocks until ctx is done.
func run(ctx context.Context, agentConfig *config.AgentConfig, logger *zap.SugaredLogger) error {
	accounts, err := config.LoadAccounts(agentConfig.ConfigPath)
	if err != nil {
		return err
	}
	logger.Infow("Accounts loaded", "path", agentConfig.ConfigPath, "accounts", len(accounts))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	telemetry := agent.NewTelemetry(registry)

	memStorage := repository.NewMemStorage()
	sinks, closeSinks, err := newSinks(ctx, agentConfig, memStorage, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	var publisher agent.ReportPublisher
	closeAudit := func() {}
	if agentConfig.AuditFile != "" || agentConfig.AuditURL != "" {
		var p *audit.Publisher
		p, closeAudit = startAudit(agentConfig, logger)
		publisher = p
	}

	a := agent.New(agent.Options{
		Accounts:   accounts,
		Interval:   agentConfig.Interval(),
		GUIDPrefix: agentConfig.GUIDPrefix,
		Storage:    poller.NewStoragePoller(poller.NewAzureQueueService, agentConfig.Workers, agentConfig.Timeout(), logger),
		Namespace:  poller.NewNamespacePoller(poller.NewAzureNamespaceService, agentConfig.Timeout(), logger),
		Reporter:   agent.NewReporter(sinks, agentConfig.Timeout(), logger, telemetry),
		Publisher:  publisher,
		Logger:     logger,
		Telemetry:  telemetry,
	})

	// Cycles are stopped through Stop, not through the signal context.
	if err := a.Start(context.Background()); err != nil {
		return err
	}
	logger.Infow("Agent started",
		"version", buildVersion,
		"interval", agentConfig.Interval(),
		"workers", agentConfig.Workers,
	)

	var server *http.Server
	if agentConfig.StatusAddress != "" {
		metricService := service.NewMetricsService(memStorage, a)
		server = &http.Server{
			Addr:    agentConfig.StatusAddress,
			Handler: handler.Router(metricService, registry, logger),
		}
		go func() {
			logger.Infow("Starting status server", "address", agentConfig.StatusAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("Status server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Stop(shutdownCtx); err != nil {
		logger.Warnw("Poll cycle did not finish before shutdown", "error", err)
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Status server shutdown failed", "error", err)
		}
	}
	closeAudit()
	logger.Info("Agent exited")
	return nil
}

// newSinks always keeps the latest values in memStorage and adds the HTTP
// and Postgres sinks when they are configured.
func newSinks(
	ctx context.Context,
	agentConfig *config.AgentConfig,
	memStorage *repository.MemStorage,
	logger *zap.SugaredLogger,
) (sink.Multi, func(), error) {
	sinks := sink.Multi{sink.NewRepositorySink(memStorage)}
	var closers []func() error

	if agentConfig.Address != "" {
		sinks = append(sinks, sink.NewHTTPSink(sink.HTTPConfig{
			URL:        endpointURL(agentConfig.Address),
			LicenseKey: agentConfig.LicenseKey,
			Key:        agentConfig.Key,
			Version:    buildVersion,
			Interval:   agentConfig.Interval(),
			Client:     &http.Client{Timeout: agentConfig.Timeout()},
		}))
	}

	if agentConfig.DatabaseDSN != "" {
		if err := migration.RunMigrations(ctx, agentConfig.DatabaseDSN, logger); err != nil {
			return nil, nil, err
		}
		db, err := repository.NewDBStorage(agentConfig.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, sink.NewRepositorySink(db))
		closers = append(closers, db.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warnw("Error closing sink", "error", err)
			}
		}
	}
	return sinks, closeAll, nil
}

// endpointURL accepts a bare host:port as well as a full URL.
func endpointURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}

// startAudit fans cycle reports out to the configured audit destinations. The
// returned func closes the pipeline and waits for the subscribers to drain.
func startAudit(agentConfig *config.AgentConfig, logger *zap.SugaredLogger) (*audit.Publisher, func()) {
	source := make(chan models.CycleReport, auditBuffer)
	var subs []chan<- models.CycleReport
	var wg sync.WaitGroup

	if agentConfig.AuditFile != "" {
		events := make(chan models.CycleReport, auditBuffer)
		subs = append(subs, events)
		wg.Add(1)
		go func() {
			defer wg.Done()
			audit.FileSubscriber(events, agentConfig.AuditFile, logger)
		}()
	}
	if agentConfig.AuditURL != "" {
		events := make(chan models.CycleReport, auditBuffer)
		subs = append(subs, events)
		wg.Add(1)
		go func() {
			defer wg.Done()
			audit.URLSubscriber(events, agentConfig.AuditURL, nil, logger)
		}()
	}
	go audit.Broadcaster(logger, source, subs...)

	return audit.NewPublisher(source, logger), func() {
		close(source)
		wg.Wait()
	}
}
