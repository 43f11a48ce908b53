package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fractald/internal/config"
)

const testConfig = `
logging:
  level: error
  console: false
render:
  render_on_start: true
  background: "10,20,30"
  defaults:
    scale_x: -2
    scale_y: -1.2
    scale_width: 3
    width: 24
    height: 12
    anti_aliasing: 1
    max_iteration: 30
    color_range: 8
    color_map: "0,0,0,255,255,255"
    threads: 3
server:
  enabled: true
  addr: 127.0.0.1:0
storage:
  driver: file
  path: %DIR%/history
`

func TestMappersRejectBadSections(t *testing.T) {
	t.Parallel()
	base, err := config.Decode("c.yaml", []byte(strings.ReplaceAll(testConfig, "%DIR%", t.TempDir())))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := validateConfig(base); err != nil {
		t.Fatalf("base config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "background", mutate: func(c *Config) { c.Render.Background = "1,2,3,4,5,6" }, want: "render.background"},
		{name: "color map", mutate: func(c *Config) { c.Render.Defaults.ColorMap = "1,2,999" }, want: "color_map"},
		{name: "empty color map", mutate: func(c *Config) { c.Render.Defaults.ColorMap = "" }, want: "colorMap"},
		{name: "pixel budget", mutate: func(c *Config) { c.Render.MaxPixels = 100 }, want: "exceeds"},
		{name: "server timeout", mutate: func(c *Config) { c.Server.ReadTimeout = "soon" }, want: "server.read_timeout"},
		{name: "pprof rate", mutate: func(c *Config) { c.Pprof.BlockProfileRate = -1 }, want: "pprof.block_profile_rate"},
		{name: "storage driver", mutate: func(c *Config) { c.Storage = &config.StorageConfig{Driver: "mongo"} }, want: "storage.driver"},
		{name: "tour schedule", mutate: func(c *Config) { c.Tour = &config.TourConfig{Enabled: true, Schedule: "whenever"} }, want: "tour"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cp := *base
			tt.mutate(&cp)
			err := validateConfig(&cp)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("validateConfig error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestMapRenderDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Decode("c.yaml", []byte(strings.ReplaceAll(testConfig, "%DIR%", t.TempDir())))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req, err := mapRenderDefaults(cfg)
	if err != nil {
		t.Fatalf("mapRenderDefaults: %v", err)
	}
	if req.PixelWidth != 24 || req.Threads != 3 || len(req.ColorMap) != 2 || req.ColorMap[1].G != 255 {
		t.Fatalf("request = %+v", req)
	}
	eng, err := mapEngineConfig(cfg)
	if err != nil {
		t.Fatalf("mapEngineConfig: %v", err)
	}
	if eng.Background.R != 10 || eng.Background.B != 30 || eng.Background.A != 0xff {
		t.Fatalf("background = %+v", eng.Background)
	}
}

func TestAppRendersAndRecordsSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fractald.yaml")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "%DIR%", dir)), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		recs, err := a.store.RecentSessions(context.Background(), 1)
		if err != nil {
			t.Fatalf("RecentSessions: %v", err)
		}
		if len(recs) == 1 {
			if recs[0].Outcome != "completed" || recs[0].Lines != 12 || recs[0].Threads != 3 {
				t.Fatalf("record = %+v", recs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial render was not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	addr := a.api.Addr()
	if addr == "" {
		t.Fatal("api not listening")
	}
	resp, err := http.Get("http://" + addr + "/api/sessions")
	if err != nil {
		t.Fatalf("GET sessions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sessions status = %d", resp.StatusCode)
	}
}
