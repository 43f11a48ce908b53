package engine

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"time"

	"fractald/internal/fractal"
)

// Config controls the render coordinator.
type Config struct {
	// QueueSize is the capacity of the channel workers stream lines into.
	QueueSize int
	// HistorySize bounds the finished sessions kept for Snapshot.
	HistorySize int
	// MaxPixels rejects requests above width*height. 0 disables the check.
	MaxPixels int
	// Background fills rows no worker delivered (cancelled or failed jobs).
	Background color.RGBA
}

// Event types published on the bus.
const (
	EventStarted   = "render.started"
	EventProgress  = "render.progress"
	EventCompleted = "render.completed"
	EventCancelled = "render.cancelled"
	EventZoom      = "render.zoom"
	EventJobFailed = "render.job_failed"
)

type State int

const (
	StateIdle State = iota
	StateRendering
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateCancelled; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown render state %q", b)
}

// maxRGBAPixels bounds w*h so that the 4-byte-per-pixel buffer length fits in an int.
const maxRGBAPixels = math.MaxInt / 4

// Request describes one render session.
type Request struct {
	Viewport     fractal.Viewport `json:"viewport"`
	PixelWidth   int              `json:"pixelWidth"`
	PixelHeight  int              `json:"pixelHeight"`
	AntiAliasing int              `json:"antiAliasing"`
	MaxIteration int              `json:"maxIteration"`
	ColorRange   int              `json:"colorRange"`
	ColorMap     []fractal.RGB    `json:"colorMap"`
	Threads      int              `json:"threads"`
}

// Validate reports every problem at once, wrapped in ErrInvalidConfig.
func (r Request) Validate(maxPixels int) error {
	var problems []string
	if r.PixelWidth <= 0 || r.PixelHeight <= 0 {
		problems = append(problems, fmt.Sprintf("pixel size %dx%d must be positive", r.PixelWidth, r.PixelHeight))
	} else if r.PixelWidth > maxRGBAPixels/r.PixelHeight {
		problems = append(problems, fmt.Sprintf("pixel size %dx%d cannot be allocated", r.PixelWidth, r.PixelHeight))
	} else if maxPixels > 0 && r.PixelWidth > maxPixels/r.PixelHeight {
		problems = append(problems, fmt.Sprintf("pixel size %dx%d exceeds %d pixels", r.PixelWidth, r.PixelHeight, maxPixels))
	}
	if r.AntiAliasing <= 0 {
		problems = append(problems, fmt.Sprintf("antiAliasing %d must be positive", r.AntiAliasing))
	}
	if r.MaxIteration <= 0 {
		problems = append(problems, fmt.Sprintf("maxIteration %d must be positive", r.MaxIteration))
	}
	if r.ColorRange <= 0 {
		problems = append(problems, fmt.Sprintf("colorRange %d must be positive", r.ColorRange))
	}
	if len(r.ColorMap) == 0 {
		problems = append(problems, "colorMap needs at least one stop")
	}
	if r.Threads <= 0 {
		problems = append(problems, fmt.Sprintf("threads %d must be positive", r.Threads))
	}
	if !r.Viewport.Valid() {
		problems = append(problems, "viewport must be finite with a positive scaleWidth")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

type Progress struct {
	Epoch uint64 `json:"epoch"`
	Done  int    `json:"done"`
	ToDo  int    `json:"toDo"`
}

type Started struct {
	Epoch   uint64  `json:"epoch"`
	Request Request `json:"request"`
	Workers int     `json:"workers"`
}

// Summary describes a finished session. It is the payload of the
// completed and cancelled events and the unit of history.
type Summary struct {
	Epoch      uint64        `json:"epoch"`
	Outcome    State         `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Request    Request       `json:"request"`
	Done       int           `json:"done"`
	ToDo       int           `json:"toDo"`
	FailedJobs int           `json:"failedJobs"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
}

// ZoomEvent carries the viewport of the render that replaces the current one.
type ZoomEvent struct {
	Epoch    uint64           `json:"epoch"`
	Viewport fractal.Viewport `json:"viewport"`
}

type JobFailure struct {
	Epoch        uint64            `json:"epoch"`
	ThreadNumber int               `json:"threadNumber"`
	Lines        fractal.LineRange `json:"lines"`
	Error        string            `json:"error"`
}

// Handlers are optional callbacks. They run one at a time on the engine's
// dispatch goroutine, never under the engine lock, so they may call back
// into the Service.
type Handlers struct {
	OnProgress  func(Progress)
	OnComplete  func(Summary)
	OnCancel    func(Summary)
	OnZoom      func(ZoomEvent)
	OnJobFailed func(JobFailure)
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running        bool                 `json:"running"`
	State          State                `json:"state"`
	Epoch          uint64               `json:"epoch"`
	Progress       Progress             `json:"progress"`
	FailedJobs     int                  `json:"failedJobs"`
	StaleDiscarded uint64               `json:"staleDiscarded"`
	QueueLen       int                  `json:"queueLen"`
	QueueCap       int                  `json:"queueCap"`
	Request        *Request             `json:"request,omitempty"`
	Jobs           []fractal.JobRequest `json:"jobs,omitempty"`
	History        []Summary            `json:"history"`
}
