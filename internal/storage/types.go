package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"fractald/internal/fractal"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retain bounds the number of sessions kept. 0 means 10000.
	Retain int
}

const defaultRetain = 10000

func (c Config) retain() int {
	if c.Retain <= 0 {
		return defaultRetain
	}
	return c.Retain
}

// SessionRecord is the persisted summary of one render session.
type SessionRecord struct {
	ID           string           `json:"id"`
	Epoch        uint64           `json:"epoch"`
	Viewport     fractal.Viewport `json:"viewport"`
	Width        int              `json:"width"`
	Height       int              `json:"height"`
	AntiAliasing int              `json:"antiAliasing"`
	MaxIteration int              `json:"maxIteration"`
	ColorRange   int              `json:"colorRange"`
	Threads      int              `json:"threads"`
	Outcome      string           `json:"outcome"`
	Reason       string           `json:"reason,omitempty"`
	Lines        int              `json:"lines"`
	FailedJobs   int              `json:"failedJobs"`
	Started      time.Time        `json:"started"`
	Duration     time.Duration    `json:"duration"`
}

// NewSessionID returns a random (v4) UUID string.
func NewSessionID() string { return uuid.NewString() }
