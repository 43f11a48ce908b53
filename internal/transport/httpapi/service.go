// Package httpapi exposes the render engine over HTTP: JSON control
// endpoints, a PNG of the current buffer and a websocket event stream.
package httpapi

import (
	"context"
	"net/http"
	"sync"

	"fractald/internal/eventbus"
	"fractald/internal/runtime/httpserver"
	logx "fractald/pkg/logx"
)

const defaultProgressPerSec = 10

type Service struct {
	log      logx.Logger
	bus      eventbus.Bus
	eng      Engine
	tour     Tour
	sessions Sessions

	mu  sync.Mutex
	cfg Config

	srv *httpserver.Server
}

// New wires the API. tr and sessions may be nil.
func New(eng Engine, tr Tour, sessions Sessions, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	s := &Service{
		log:      log.With(logx.String("comp", "httpapi")),
		bus:      bus,
		eng:      eng,
		tour:     tr,
		sessions: sessions,
		srv:      httpserver.New("httpapi", log),
	}
	s.srv.SetHandler(s.Handler())
	return s
}

// Reconfigure applies cfg; the listener restarts only if its address or
// timeouts changed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	if cfg.ProgressPerSec <= 0 {
		cfg.ProgressPerSec = defaultProgressPerSec
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.srv.Reconfigure(ctx, httpserver.Config{
		Enabled:      cfg.Enabled,
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	})
}

func (s *Service) Stop(ctx context.Context) { s.srv.Stop(ctx) }

// Addr is the bound address, empty when not serving.
func (s *Service) Addr() string { return s.srv.Addr() }

func (s *Service) Server() *httpserver.Server { return s.srv }

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	if cfg.ProgressPerSec <= 0 {
		cfg.ProgressPerSec = defaultProgressPerSec
	}
	return cfg
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/render", s.handleRender)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/zoom", s.handleZoom)
	mux.HandleFunc("GET /api/image.png", s.handleImage)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("POST /api/tour/next", s.handleTourNext)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}
