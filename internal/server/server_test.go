package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestHealthz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		health HealthFunc
		code   int
		status string
	}{
		{"default", nil, http.StatusOK, "ok"},
		{"details", func() (bool, map[string]any) { return true, map[string]any{"sessions": 3} }, http.StatusOK, "ok"},
		{"degraded", func() (bool, map[string]any) { return false, nil }, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(Config{}, tt.health, nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rr.Code != tt.code {
				t.Fatalf("code = %d", rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.status {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestWebhookMountedOnlyWhenGiven(t *testing.T) {
	t.Parallel()
	var hits int
	wh := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ })

	h := NewRouter(Config{WebhookPath: "hook/"}, nil, wh)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("{}")))
	if rr.Code != http.StatusOK || hits != 1 {
		t.Fatalf("code = %d hits = %d", rr.Code, hits)
	}

	h = NewRouter(Config{WebhookPath: "/hook"}, nil, nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/hook", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("code without webhook = %d", rr.Code)
	}
}

func TestPprofGuard(t *testing.T) {
	t.Parallel()
	h := NewRouter(Config{Pprof: true, PprofToken: "tok"}, nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("without token = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("with token = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	NewRouter(Config{}, nil, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("pprof off = %d", rr.Code)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "127.0.0.1:0"}, NewRouter(Config{}, nil, nil), logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), `"ok"`) {
		t.Fatalf("resp = %d %s", resp.StatusCode, b)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
