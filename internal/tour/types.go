package tour

import (
	"errors"
	"time"

	"fractald/internal/render/engine"
)

// EventVisit is published on the bus each time a stop is rendered.
const EventVisit = "tour.visit"

var ErrNoStops = errors.New("tour has no stops")

// Renderer is the part of the render engine the tour drives.
type Renderer interface {
	StartRender(req engine.Request) (uint64, error)
}

// Stop is a point of interest, given by its centre and plane width.
type Stop struct {
	Name         string  `json:"name"`
	CenterX      float64 `json:"centerX"`
	CenterY      float64 `json:"centerY"`
	Width        float64 `json:"width"`
	MaxIteration int     `json:"maxIteration,omitempty"` // 0 keeps the base value
}

// Config controls the tour.
//
// Base carries everything but the viewport: pixel size, colours, threads.
type Config struct {
	Enabled  bool
	Schedule string
	Timezone string // IANA TZ; empty means Local
	Stops    []Stop
	Base     engine.Request
}

// DefaultStops is used when the config lists none.
func DefaultStops() []Stop {
	return []Stop{
		{Name: "overview", CenterX: -0.5, CenterY: 0, Width: 3.5},
		{Name: "seahorse valley", CenterX: -0.7453, CenterY: 0.1127, Width: 0.0065, MaxIteration: 1024},
		{Name: "elephant valley", CenterX: 0.2925, CenterY: 0.0149, Width: 0.012, MaxIteration: 1024},
		{Name: "triple spiral valley", CenterX: -0.0883, CenterY: 0.6549, Width: 0.012, MaxIteration: 1024},
		{Name: "mini mandelbrot", CenterX: -1.7549, CenterY: 0, Width: 0.04, MaxIteration: 512},
	}
}

type Visit struct {
	Index int       `json:"index"`
	Stop  Stop      `json:"stop"`
	Epoch uint64    `json:"epoch"`
	At    time.Time `json:"at"`
}

type Snapshot struct {
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	Schedule string    `json:"schedule"`
	Timezone string    `json:"timezone"`
	Stops    []Stop    `json:"stops"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev"`
	Visits   uint64    `json:"visits"`
	Last     *Visit    `json:"last,omitempty"`
	LastErr  string    `json:"lastErr,omitempty"`
}
