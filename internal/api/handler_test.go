package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func setupObservedRouter(t *testing.T, opts ...RouterOption) (http.Handler, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	router := NewRouter(NewHandler(logger), logger, opts...)
	return router, logs
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body.Status
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, logs := setupObservedRouter(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected JSON content type, got %q", ct)
		}
		if status := decodeStatus(t, rec); status != "ok" {
			t.Fatalf("expected status ok, got %s", status)
		}
	}

	if logs.Len() != 0 {
		t.Fatalf("expected health checks to stay silent, got %d log entries", logs.Len())
	}
}

func TestHealthBodyIsExact(t *testing.T) {
	router, _ := setupObservedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Body.String(); got != "{\"status\":\"ok\"}\n" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestReadyEndpointLogsOncePerCall(t *testing.T) {
	router, logs := setupObservedRouter(t)

	const calls = 4
	for i := 0; i < calls; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		req.Header.Set("X-Request-ID", "ready-probe")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if status := decodeStatus(t, rec); status != "ready" {
			t.Fatalf("expected status ready, got %s", status)
		}
		if n := logs.Len(); n != i+1 {
			t.Fatalf("expected %d log entries after %d calls, got %d", i+1, i+1, n)
		}
	}

	entries := logs.FilterMessage("ready check").AllUntimed()
	if len(entries) != calls {
		t.Fatalf("expected %d ready check entries, got %d", calls, len(entries))
	}
	for _, entry := range entries {
		if entry.Level != zap.InfoLevel {
			t.Fatalf("expected info level, got %s", entry.Level)
		}
		if got := entry.ContextMap()["request_id"]; got != "ready-probe" {
			t.Fatalf("expected request id on ready log entry, got %v", got)
		}
	}
}

func TestProbesRejectOtherMethods(t *testing.T) {
	router, _ := setupObservedRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	router, _ := setupObservedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestNewHandlerToleratesNilLogger(t *testing.T) {
	router := NewRouter(NewHandler(nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
