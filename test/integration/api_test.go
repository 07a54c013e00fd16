package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/rukun/api/internal/application"
	"github.com/rukun/api/internal/config"
	"github.com/rukun/api/internal/env"
)

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return port
}

func startApp(t *testing.T, cfg config.Config, opts ...application.Option) *application.App {
	t.Helper()

	app, err := application.New(cfg, zaptest.NewLogger(t), opts...)
	if err != nil {
		t.Fatalf("application.New returned error: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
		<-app.Errors()
	})
	return app
}

func getStatus(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode, body.Status
}

func TestProbesOverExplicitBinding(t *testing.T) {
	port := freePort(t)
	host := "127.0.0.1"
	provider := env.NewReader(zaptest.NewLogger(t), env.WithLookup(env.Map{}.Lookup))

	cfg, err := config.Load(provider, &config.CLIOverrides{Host: &host, Port: &port})
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	app := startApp(t, cfg)

	if app.Addr() != cfg.Addr() {
		t.Fatalf("expected listener at %s, got %s", cfg.Addr(), app.Addr())
	}

	for i := 0; i < 3; i++ {
		if code, status := getStatus(t, "http://"+cfg.Addr()+"/health"); code != http.StatusOK || status != "ok" {
			t.Fatalf("unexpected /health response %d %q", code, status)
		}
		if code, status := getStatus(t, "http://"+cfg.Addr()+"/ready"); code != http.StatusOK || status != "ready" {
			t.Fatalf("unexpected /ready response %d %q", code, status)
		}
	}
}

func TestEnvFileDrivesBinding(t *testing.T) {
	port := freePort(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "HOST=127.0.0.1\nPORT=" + strconv.Itoa(port) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// Register restoration, then clear so the file values are applied.
	t.Setenv("HOST", "")
	t.Setenv("PORT", "")
	_ = os.Unsetenv("HOST")
	_ = os.Unsetenv("PORT")

	if _, err := env.Load(path); err != nil {
		t.Fatalf("env.Load returned error: %v", err)
	}
	cfg, err := config.Load(env.NewReader(zaptest.NewLogger(t)), nil)
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	startApp(t, cfg)

	if code, _ := getStatus(t, "http://127.0.0.1:"+strconv.Itoa(port)+"/health"); code != http.StatusOK {
		t.Fatalf("expected /health on env-configured port, got %d", code)
	}
}

func TestAttachedRoutesAreRateLimitedButProbesAreNot(t *testing.T) {
	cfg, err := config.Load(nil, nil)
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.EnableRequestLogging = false
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1

	app := startApp(t, cfg, application.WithRoute("GET /api/groups",
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))
	base := "http://" + app.Addr()

	if code, _ := getStatus(t, base+"/api/groups"); code != http.StatusOK {
		t.Fatalf("expected first attached request to pass, got %d", code)
	}
	if code, _ := getStatus(t, base+"/api/groups"); code != http.StatusTooManyRequests {
		t.Fatalf("expected second attached request to be limited, got %d", code)
	}
	for i := 0; i < 5; i++ {
		if code, _ := getStatus(t, base+"/health"); code != http.StatusOK {
			t.Fatalf("expected probes to bypass the limiter, got %d", code)
		}
	}
}
