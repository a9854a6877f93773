package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"bff-gateway/internal/client"
	"bff-gateway/internal/config"
	"bff-gateway/internal/service"
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
			UploadWorkers: 2,
		},
		Tracker: config.TrackerConfig{QueueSize: 8, TimeoutSeconds: 1},
	}
}

// newTestEcho builds the full route table against the given upstreams.
func newTestEcho(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	logger := testLogger()
	uc := client.NewUpstreamClient(cfg, logger, nil)

	authSvc, err := service.NewAuthService(uc, cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	stager, err := service.NewStager(cfg, logger)
	if err != nil {
		t.Fatalf("NewStager: %v", err)
	}
	fileSvc, err := service.NewFileService(uc, cfg, logger, stager, nil)
	if err != nil {
		t.Fatalf("NewFileService: %v", err)
	}

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	RegisterRoutes(e,
		NewAuthHandler(authSvc, logger),
		NewFileHandler(fileSvc, logger),
		NewHealthHandler(cfg, "test"),
	)
	return e
}

// deadURL returns the address of a server that is no longer listening.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}
