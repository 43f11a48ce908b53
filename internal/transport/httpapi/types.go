package httpapi

import (
	"context"
	"image"
	"time"

	"fractald/internal/fractal"
	"fractald/internal/render/engine"
	"fractald/internal/storage"
	"fractald/internal/tour"
)

// Config controls the API listener and the websocket stream.
type Config struct {
	Enabled bool
	Addr    string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ProgressPerSec caps progress events per websocket client.
	ProgressPerSec float64
	OriginPatterns []string

	// Defaults fill the fields a render request leaves out.
	Defaults engine.Request
}

type Engine interface {
	StartRender(req engine.Request) (uint64, error)
	StopRender() error
	Zoom(v fractal.Viewport) (uint64, error)
	ZoomRect(r image.Rectangle) (uint64, error)
	Image() *image.RGBA
	Snapshot() engine.Snapshot
}

type Tour interface {
	Advance() (tour.Visit, error)
	Snapshot() tour.Snapshot
}

type Sessions interface {
	RecentSessions(ctx context.Context, limit int) ([]storage.SessionRecord, error)
}

// renderBody is a partial render request; nil fields take the defaults.
type renderBody struct {
	ScaleX       *float64 `json:"scaleX"`
	ScaleY       *float64 `json:"scaleY"`
	ScaleWidth   *float64 `json:"scaleWidth"`
	PixelWidth   *int     `json:"pixelWidth"`
	PixelHeight  *int     `json:"pixelHeight"`
	AntiAliasing *int     `json:"antiAliasing"`
	MaxIteration *int     `json:"maxIteration"`
	ColorRange   *int     `json:"colorRange"`
	ColorMap     *string  `json:"colorMap"`
	Threads      *int     `json:"threads"`
}

// zoomBody carries either a target viewport or a pixel rectangle of the
// current image.
type zoomBody struct {
	Viewport *fractal.Viewport `json:"viewport,omitempty"`
	Rect     *struct {
		X0 int `json:"x0"`
		Y0 int `json:"y0"`
		X1 int `json:"x1"`
		Y1 int `json:"y1"`
	} `json:"rect,omitempty"`
}

type epochReply struct {
	Epoch uint64 `json:"epoch"`
}

type statusReply struct {
	Render engine.Snapshot `json:"render"`
	Tour   *tour.Snapshot  `json:"tour,omitempty"`
}

// wireEvent is one websocket frame.
type wireEvent struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}
