// Package pprof serves net/http/pprof on an optional, separately bound
// listener. Non-loopback binds require a token unless AllowInsecure is set.
package pprof

import (
	"context"
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	"fractald/internal/runtime/httpserver"
	logx "fractald/pkg/logx"
)

var ErrInsecureBind = errors.New("pprof: non-loopback addr requires token or allow_insecure")

// Config controls the optional pprof HTTP server.
type Config struct {
	Enabled       bool
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MutexProfileFraction int
	BlockProfileRate     int
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	srv *httpserver.Server
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log.With(logx.String("comp", "pprof")), srv: httpserver.New("pprof", log)}
}

// Addr is the bound address, empty when not serving.
func (s *Service) Addr() string { return s.srv.Addr() }

func (s *Service) Server() *httpserver.Server { return s.srv }

// Reconfigure applies cfg and starts, stops or restarts the server.
// Profiling rates apply even when the server is disabled.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	applyRuntimeRates(cfg)

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	if cfg.Enabled && !cfg.AllowInsecure && cfg.Token == "" && !httpserver.IsLoopbackAddr(addr) {
		s.log.Error("pprof refused to start", logx.String("addr", addr))
		s.srv.Reconfigure(ctx, httpserver.Config{})
		return ErrInsecureBind
	}
	if cfg.Enabled && cfg.Token == "" && !httpserver.IsLoopbackAddr(addr) {
		s.log.Warn("pprof running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.srv.SetHandler(Handler(cfg.Prefix, cfg.Token))
	s.srv.Reconfigure(ctx, httpserver.Config{
		Enabled:      cfg.Enabled,
		Addr:         addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	})
	return nil
}

func (s *Service) Stop(ctx context.Context) { s.srv.Stop(ctx) }

func applyRuntimeRates(cfg Config) {
	if cfg.MutexProfileFraction >= 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate >= 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

// Handler serves the pprof endpoints under prefix plus /healthz.
func Handler(prefix, token string) http.Handler {
	prefix = normalizePrefix(prefix)
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	base := strings.TrimSuffix(prefix, "/")
	mux.HandleFunc(prefix, wrap(indexAt(prefix)))
	mux.HandleFunc(base+"/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc(base+"/profile", wrap(hpprof.Profile))
	mux.HandleFunc(base+"/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc(base+"/trace", wrap(hpprof.Trace))
	mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
	})
	return mux
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// indexAt rewrites the path because pprof.Index assumes /debug/pprof/.
func indexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	}
}
