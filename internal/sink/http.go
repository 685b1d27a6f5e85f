package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	internalerrors "github.com/Schera-ole/queuemonitor/internal/errors"
	models "github.com/Schera-ole/queuemonitor/internal/model"
)

// HTTPConfig configures an HTTPSink.
type HTTPConfig struct {
	// URL is the metrics endpoint of the backend
	URL string

	// LicenseKey is sent in the X-License-Key header
	LicenseKey string

	// Key signs the compressed body with HMAC-SHA256 when set
	Key string

	// Version is reported as the agent version
	Version string

	// Interval is reported as the duration of every component
	Interval time.Duration

	// Client defaults to http.DefaultClient
	Client *http.Client
}

// Payload is the body posted to the backend.
type Payload struct {
	Agent      AgentInfo          `json:"agent"`
	Components []ComponentPayload `json:"components"`
}

// AgentInfo identifies the reporting process.
type AgentInfo struct {
	Host    string `json:"host"`
	PID     int    `json:"pid"`
	Version string `json:"version"`
}

// ComponentPayload carries the metrics of one component.
type ComponentPayload struct {
	Name     string             `json:"name"`
	GUID     string             `json:"guid"`
	Duration int                `json:"duration"`
	Metrics  map[string]float64 `json:"metrics"`
}

// HTTPSink posts buffered metrics in the plugin API format, one request per flush.
//
// Bodies are gzip compressed. A failed request is not retried and its metrics
// are dropped.
type HTTPSink struct {
	config HTTPConfig
	agent  AgentInfo
	buffer buffer
}

// NewHTTPSink creates an HTTPSink for config.
func NewHTTPSink(config HTTPConfig) *HTTPSink {
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	host, _ := os.Hostname()
	return &HTTPSink{
		config: config,
		agent: AgentInfo{
			Host:    host,
			PID:     os.Getpid(),
			Version: config.Version,
		},
	}
}

// ReportMetric buffers metric until the component is flushed.
func (s *HTTPSink) ReportMetric(ctx context.Context, component models.Component, metric models.Metric) error {
	s.buffer.add(component, metric)
	return nil
}

// Flush posts the buffered metrics of component.
func (s *HTTPSink) Flush(ctx context.Context, component models.Component) error {
	metrics := s.buffer.take(component)
	if len(metrics) == 0 {
		return nil
	}

	body, err := compress(s.payload(component, metrics))
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request for %s: %w", s.config.URL, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Encoding", "gzip")
	if s.config.LicenseKey != "" {
		request.Header.Set("X-License-Key", s.config.LicenseKey)
	}
	if s.config.Key != "" {
		request.Header.Set("HashSHA256", countHashString(body, s.config.Key))
	}

	response, err := s.config.Client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: error sending request for %s: %w", internalerrors.ErrSinkUnavailable, s.config.URL, err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: error reading response body: %w", internalerrors.ErrSinkUnavailable, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("%w: server returned error status %d: %s", internalerrors.ErrSinkUnavailable, response.StatusCode, string(respBody))
	}
	return nil
}

func (s *HTTPSink) payload(component models.Component, metrics []models.Metric) Payload {
	values := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		values[MetricKey(m)] = m.Value
	}
	return Payload{
		Agent: s.agent,
		Components: []ComponentPayload{{
			Name:     component.Name,
			GUID:     component.GUID,
			Duration: int(s.config.Interval / time.Second),
			Metrics:  values,
		}},
	}
}

// MetricKey renders a metric as "Component/<name>[<unit>]".
func MetricKey(m models.Metric) string {
	return fmt.Sprintf("Component/%s[%s]", m.Name, m.Unit)
}

func compress(payload Payload) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error creating json: %w", err)
	}
	var compressedData bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressedData)
	if _, err := gzipWriter.Write(jsonData); err != nil {
		return nil, fmt.Errorf("error compressing data: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return compressedData.Bytes(), nil
}

func countHash(compressedBody []byte, key string) []byte {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(compressedBody)
	return h.Sum(nil)
}

func countHashString(compressedBody []byte, key string) string {
	return fmt.Sprintf("%x", countHash(compressedBody, key))
}
