package app

import (
	"fmt"
	"image/color"
	"runtime"
	"strings"

	"fractald/internal/fractal"
	"fractald/internal/render/engine"
)

// mapEngineConfig validates and converts the render section into engine
// settings.
func mapEngineConfig(cfg *Config) (engine.Config, error) {
	var out engine.Config
	if cfg == nil {
		return out, nil
	}
	rc := cfg.Render
	if rc.QueueSize < 0 {
		return out, fmt.Errorf("render.queue_size must be >= 0")
	}
	if rc.HistorySize < 0 {
		return out, fmt.Errorf("render.history_size must be >= 0")
	}
	if rc.MaxPixels < 0 {
		return out, fmt.Errorf("render.max_pixels must be >= 0")
	}
	out.QueueSize = rc.QueueSize
	out.HistorySize = rc.HistorySize
	out.MaxPixels = rc.MaxPixels

	if bg := strings.TrimSpace(rc.Background); bg != "" {
		stops, err := fractal.ParseColorMap(bg)
		if err != nil {
			return out, fmt.Errorf("render.background: %w", err)
		}
		if len(stops) != 1 {
			return out, fmt.Errorf("render.background must be a single r,g,b triplet")
		}
		out.Background = color.RGBA{R: stops[0].R, G: stops[0].G, B: stops[0].B, A: 0xff}
	}
	return out, nil
}

// mapRenderDefaults builds the request used for render_on_start, the tour
// and any field an API request leaves out. The result must validate.
func mapRenderDefaults(cfg *Config) (engine.Request, error) {
	var out engine.Request
	if cfg == nil {
		return out, nil
	}
	d := cfg.Render.Defaults
	if d.Threads < 0 {
		return out, fmt.Errorf("render.defaults.threads must be >= 0")
	}
	stops, err := fractal.ParseColorMap(d.ColorMap)
	if err != nil {
		return out, fmt.Errorf("render.defaults.color_map: %w", err)
	}
	threads := d.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}
	out = engine.Request{
		Viewport:     fractal.Viewport{ScaleX: d.ScaleX, ScaleY: d.ScaleY, ScaleWidth: d.ScaleWidth},
		PixelWidth:   d.Width,
		PixelHeight:  d.Height,
		AntiAliasing: d.AntiAliasing,
		MaxIteration: d.MaxIteration,
		ColorRange:   d.ColorRange,
		ColorMap:     stops,
		Threads:      threads,
	}
	if err := out.Validate(cfg.Render.MaxPixels); err != nil {
		return out, fmt.Errorf("render.defaults: %w", err)
	}
	return out, nil
}
