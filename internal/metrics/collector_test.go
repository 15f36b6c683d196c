package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"

	"homeops-driver/internal/config"
	"homeops-driver/internal/recovery"
	"homeops-driver/internal/target"
)

func TestCollectSurvivesMixedHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"memory_mb": 120.5, "entity_count": 8, "latency_ms": 3, "state_changes": 42}`))
	}))
	defer healthy.Close()

	alpha := target.New("alpha", resty.New().SetBaseURL(healthy.URL), nil, healthy.URL+"/api/health", slog.Default())
	beta := target.New("beta", resty.New().SetBaseURL("http://127.0.0.1:1"), nil, "http://127.0.0.1:1/api/health", slog.Default())
	targets := []*target.Target{alpha, beta}
	inj := recovery.NewInjector(targets, []config.TargetConfig{{Name: "alpha"}, {Name: "beta"}}, slog.Default())

	// Best-effort snapshot: one target healthy, one offline, no panic either way.
	Collect(context.Background(), targets, inj)
}
