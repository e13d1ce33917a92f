// Package server exposes the bot over HTTP: a health probe for the hosting
// platform and, in webhook mode, the Telegram update endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Addr        string // host:port; ":10000" when empty
	WebhookPath string // mounted only when a webhook handler is given

	// Pprof mounts net/http/pprof under /debug. A non-empty PprofToken
	// requires "Authorization: Bearer <token>".
	Pprof      bool
	PprofToken string
}

// HealthFunc reports readiness and details for /healthz.
type HealthFunc func() (ok bool, details map[string]any)

// NewRouter builds the HTTP routes. webhook may be nil.
func NewRouter(cfg Config, health HealthFunc, webhook http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	healthz := func(w http.ResponseWriter, req *http.Request) {
		ok, details := true, map[string]any{}
		if health != nil {
			ok, details = health()
		}
		body := map[string]any{"status": "ok"}
		for k, v := range details {
			body[k] = v
		}
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			body["status"] = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(body)
	}
	r.Get("/healthz", healthz)
	r.Head("/healthz", healthz)

	if webhook != nil {
		path := "/" + strings.Trim(cfg.WebhookPath, "/")
		r.Post(path, webhook.ServeHTTP)
	}
	if cfg.Pprof {
		r.With(bearer(cfg.PprofToken)).Mount("/debug", chimw.Profiler())
	}
	return r
}

func bearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := "Bearer " + token
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type Server struct {
	log logx.Logger
	srv *http.Server

	mu  sync.Mutex
	sup *rtsup.Supervisor
	ln  net.Listener
}

func New(cfg Config, handler http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":10000"
	}
	return &Server{
		log: log.With(logx.String("comp", "http")),
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listener synchronously and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.mu.Lock()
	s.ln = ln
	s.sup = sup
	s.mu.Unlock()

	sup.Go("http.serve", func(c context.Context) error {
		s.log.Info("listening", logx.String("addr", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
			return err
		}
		return nil
	})
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	_ = sup.Stop(ctx)
	return err
}
