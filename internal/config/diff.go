package config

import (
	"reflect"
	"sort"
	"strings"

	logx "fractald/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 24)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	op, np := oldCfg.Pprof, newCfg.Pprof
	op.Token, np.Token = tokenMarker(op.Token), tokenMarker(np.Token)
	if !reflect.DeepEqual(op, np) {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(np.Addr)),
			logx.String("pprof.prefix", strings.TrimSpace(np.Prefix)),
			logx.Bool("pprof.token_set", np.Token != ""),
			logx.Bool("pprof.allow_insecure", np.AllowInsecure),
		)
	}

	if !reflect.DeepEqual(oldCfg.Render, newCfg.Render) {
		changed = append(changed, "render")
		r := newCfg.Render
		attrs = append(attrs,
			logx.Int("render.queue_size", r.QueueSize),
			logx.Int("render.history_size", r.HistorySize),
			logx.Int("render.max_pixels", r.MaxPixels),
			logx.Bool("render.defaults_changed", !reflect.DeepEqual(oldCfg.Render.Defaults, r.Defaults)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Float64("server.progress_per_sec", newCfg.Server.ProgressPerSec),
		)
	}

	// Nil sections mean disabled.
	if !reflect.DeepEqual(oldCfg.Tour, newCfg.Tour) {
		changed = append(changed, "tour")
		var t TourConfig
		if newCfg.Tour != nil {
			t = *newCfg.Tour
		}
		attrs = append(attrs,
			logx.Bool("tour.enabled", t.Enabled),
			logx.String("tour.schedule", strings.TrimSpace(t.Schedule)),
			logx.Int("tour.stops", len(t.Stops)),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) ||
		oS.Retain != nS.Retain {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
			logx.Int("storage.retain", nS.Retain),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func tokenMarker(tok string) string {
	if strings.TrimSpace(tok) == "" {
		return ""
	}
	return "set"
}
