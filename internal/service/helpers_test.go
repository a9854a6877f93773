package service

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"bff-gateway/internal/client"
	"bff-gateway/internal/config"
	"bff-gateway/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, authURL, fileURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Upstream: config.UpstreamConfig{TimeoutSeconds: 5, IdleConnections: 10},
		Auth:     config.AuthConfig{BaseURL: authURL},
		File:     config.FileConfig{BaseURL: fileURL, UploadTimeoutSeconds: 5},
		Storage: config.StorageConfig{
			TempDir:       t.TempDir(),
			MaxFileBytes:  1 << 20,
			UploadWorkers: 1,
		},
		Tracker: config.TrackerConfig{QueueSize: 8, TimeoutSeconds: 2},
	}
}

func testClient(cfg *config.Config, m *metrics.Metrics) *client.UpstreamClient {
	return client.NewUpstreamClient(cfg, testLogger(), m)
}

// deadURL returns the address of a server that is no longer listening.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
