package app

import (
	"fractald/internal/render/engine"
	"fractald/internal/tour"
)

func mapTourConfig(cfg *Config, base engine.Request) tour.Config {
	out := tour.Config{Base: base}
	if cfg == nil || cfg.Tour == nil {
		return out
	}
	tc := cfg.Tour
	out.Enabled = tc.Enabled
	out.Schedule = tc.Schedule
	out.Timezone = tc.Timezone
	for _, st := range tc.Stops {
		out.Stops = append(out.Stops, tour.Stop{
			Name:         st.Name,
			CenterX:      st.CenterX,
			CenterY:      st.CenterY,
			Width:        st.Width,
			MaxIteration: st.MaxIteration,
		})
	}
	return out
}
