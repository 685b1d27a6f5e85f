// Package audit distributes cycle reports to audit destinations.
//
// It implements a publish-subscribe pattern: the agent publishes one report
// per cycle, a broadcaster fans it out to file and HTTP subscribers.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// Publisher sends cycle reports to a channel without ever blocking the agent.
type Publisher struct {
	events chan<- models.CycleReport
	logger *zap.SugaredLogger
}

// NewPublisher creates a Publisher that sends reports to events.
func NewPublisher(events chan<- models.CycleReport, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		events: events,
		logger: logger,
	}
}

// Publish sends report, dropping it when the channel is full.
func (p *Publisher) Publish(report models.CycleReport) {
	select {
	case p.events <- report:
	default:
		p.logger.Warnw("audit channel is full, dropping cycle report", "cycle", report.ID)
	}
}

// Broadcaster distributes reports from source to every subscriber channel.
//
// A blocked subscriber loses the report instead of stalling the others. The
// subscriber channels are closed once source is closed.
func Broadcaster(logger *zap.SugaredLogger, source <-chan models.CycleReport, subs ...chan<- models.CycleReport) {
	defer func() {
		for _, subChan := range subs {
			close(subChan)
		}
	}()

	for report := range source {
		for i, subChan := range subs {
			select {
			case subChan <- report:
			default:
				logger.Warnw("dropped cycle report for blocked subscriber", "subscriber", i, "cycle", report.ID)
			}
		}
	}
}

// FileSubscriber appends every report as a JSON line to the file at path.
func FileSubscriber(events <-chan models.CycleReport, path string, logger *zap.SugaredLogger) {
	for report := range events {
		if err := appendLine(path, report); err != nil {
			logger.Errorw("error writing audit file", "path", path, "cycle", report.ID, "error", err)
			continue
		}
		logger.Debugw("cycle report written", "path", path, "cycle", report.ID)
	}
}

func appendLine(path string, report models.CycleReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// URLSubscriber posts every report as JSON to url.
func URLSubscriber(events <-chan models.CycleReport, url string, client *http.Client, logger *zap.SugaredLogger) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	for report := range events {
		if err := post(client, url, report); err != nil {
			logger.Errorw("error sending cycle report", "url", url, "cycle", report.ID, "error", err)
			continue
		}
		logger.Debugw("cycle report sent", "url", url, "cycle", report.ID)
	}
}

func post(client *http.Client, url string, report models.CycleReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("error marshaling report: %w", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
