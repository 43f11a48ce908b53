package app

import (
	"fmt"
	"strings"
	"time"

	"fractald/internal/observability/pprof"
	"fractald/internal/render/engine"
	"fractald/internal/transport/httpapi"
)

func mapServerConfig(cfg *Config, defaults engine.Request) (httpapi.Config, error) {
	var out httpapi.Config
	if cfg == nil {
		return out, nil
	}
	sc := cfg.Server
	if sc.ProgressPerSec < 0 {
		return out, fmt.Errorf("server.progress_per_sec must be >= 0")
	}
	out.Enabled = sc.Enabled
	out.Addr = strings.TrimSpace(sc.Addr)
	if out.Addr == "" {
		out.Addr = "127.0.0.1:8080"
	}
	out.ProgressPerSec = sc.ProgressPerSec
	out.OriginPatterns = append([]string(nil), sc.OriginPatterns...)
	out.Defaults = defaults

	var err error
	if out.ReadTimeout, err = parseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 10*time.Second); err != nil {
		return out, err
	}
	// Websocket streams are long-lived; 0 disables the write timeout.
	if out.WriteTimeout, err = parseDurationField("server.write_timeout", sc.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = parseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, 120*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

// mapPprofConfig validates and converts the pprof section. It never starts
// the server.
func mapPprofConfig(cfg *Config) (pprof.Config, error) {
	var out pprof.Config
	if cfg == nil {
		return out, nil
	}
	pc := cfg.Pprof
	out.Enabled = pc.Enabled
	out.AllowInsecure = pc.AllowInsecure
	out.Token = strings.TrimSpace(pc.Token)
	out.Addr = strings.TrimSpace(pc.Addr)
	out.Prefix = strings.TrimSpace(pc.Prefix)
	if out.Addr == "" {
		out.Addr = "127.0.0.1:6060"
	}

	var err error
	if out.ReadTimeout, err = parseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	if out.WriteTimeout, err = parseDurationField("pprof.write_timeout", pc.WriteTimeout); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = parseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, 120*time.Second); err != nil {
		return out, err
	}

	if pc.MutexProfileFraction < 0 {
		return out, fmt.Errorf("pprof.mutex_profile_fraction must be >= 0")
	}
	if pc.BlockProfileRate < 0 {
		return out, fmt.Errorf("pprof.block_profile_rate must be >= 0")
	}
	out.MutexProfileFraction = pc.MutexProfileFraction
	out.BlockProfileRate = pc.BlockProfileRate
	return out, nil
}
