package pprof

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	logx "fractald/pkg/logx"
)

func TestReconfigureEnableDisable(t *testing.T) {
	s := New(logx.Nop())
	t.Cleanup(func() { s.Stop(context.Background()) })
	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		_ = runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := Config{Enabled: true, Addr: "127.0.0.1:0", BlockProfileRate: 1, MutexProfileFraction: 7}
	if err := s.Reconfigure(ctx, cfg); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("expected pprof server to expose address")
	}
	resp, err := http.Get("http://" + addr + "/debug/pprof/")
	if err != nil {
		t.Fatalf("pprof endpoint not reachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := runtime.SetMutexProfileFraction(-1); got != cfg.MutexProfileFraction {
		t.Fatalf("mutex profile fraction = %d, want %d", got, cfg.MutexProfileFraction)
	}

	if err := s.Reconfigure(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("Reconfigure error: %v", err)
	}
	if addr := s.Addr(); addr != "" {
		t.Fatalf("expected pprof server to stop, still at %s", addr)
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	s := New(logx.Nop())
	err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0", MutexProfileFraction: -1, BlockProfileRate: -1})
	if !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("expected ErrInsecureBind, got %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("server must not be running")
	}
}

func TestHandlerAuth(t *testing.T) {
	t.Parallel()
	h := Handler("/dbg", "s3cret")
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "no token", path: "/healthz", want: http.StatusUnauthorized},
		{name: "query token", path: "/healthz?token=s3cret", want: http.StatusOK},
		{name: "bearer", path: "/healthz", header: "Bearer s3cret", want: http.StatusOK},
		{name: "wrong bearer", path: "/healthz", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "redirect", path: "/dbg", want: http.StatusPermanentRedirect},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("%s -> %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}
