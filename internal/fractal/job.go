package fractal

import (
	"errors"
	"fmt"
)

var ErrInvalidJob = errors.New("invalid job")

// Job is the work order for one worker: a line range of one session.
// Palette is shared read-only between all jobs of the session.
type Job struct {
	ThreadNumber int
	JobNumber    uint64

	Viewport     Viewport
	PixelWidth   int
	PixelHeight  int
	AntiAliasing int
	MaxIteration int
	ColorRange   int
	ColorMap     []RGB

	Lines   LineRange
	Palette Palette
}

func (j Job) Validate() error {
	switch {
	case j.PixelWidth <= 0 || j.PixelHeight <= 0:
		return fmt.Errorf("%w: pixel size %dx%d", ErrInvalidJob, j.PixelWidth, j.PixelHeight)
	case j.AntiAliasing <= 0:
		return fmt.Errorf("%w: antiAliasing %d", ErrInvalidJob, j.AntiAliasing)
	case j.MaxIteration <= 0:
		return fmt.Errorf("%w: maxIteration %d", ErrInvalidJob, j.MaxIteration)
	case j.ColorRange <= 0 || j.Palette.Len() != j.ColorRange:
		return fmt.Errorf("%w: colorRange %d with palette of %d", ErrInvalidJob, j.ColorRange, j.Palette.Len())
	case j.Lines.From < 0 || j.Lines.To >= j.PixelHeight || j.Lines.Len() == 0:
		return fmt.Errorf("%w: lines %d..%d of %d", ErrInvalidJob, j.Lines.From, j.Lines.To, j.PixelHeight)
	case !j.Viewport.Valid():
		return fmt.Errorf("%w: viewport %+v", ErrInvalidJob, j.Viewport)
	}
	return nil
}

// Message is what a worker sends back. Done=false carries one finished
// line; Done=true ends the job, with Err set when the job failed.
type Message struct {
	Done         bool   `json:"done"`
	ThreadNumber int    `json:"threadNumber"`
	JobNumber    uint64 `json:"jobNumber"`
	LineNumber   int    `json:"lineNumber,omitempty"`
	// Pixels is one RGBA row, 4*PixelWidth bytes.
	Pixels []byte `json:"linePixelData,omitempty"`
	Err    error  `json:"-"`
}

// JobRequest is the flat wire form of a Job.
type JobRequest struct {
	ThreadNumber int     `json:"threadNumber"`
	JobNumber    uint64  `json:"jobNumber"`
	ScaleX       float64 `json:"scaleX"`
	ScaleY       float64 `json:"scaleY"`
	ScaleWidth   float64 `json:"scaleWidth"`
	PixelWidth   int     `json:"pixelWidth"`
	PixelHeight  int     `json:"pixelHeight"`
	ColorRange   int     `json:"colorRange"`
	ColorMap     string  `json:"colorMap"`
	AntiAliasing int     `json:"antiAliasing"`
	Interval     int     `json:"interval"`
	LineFrom     int     `json:"lineFrom"`
	LineTo       int     `json:"lineTo"`
}

func (j Job) Request() JobRequest {
	return JobRequest{
		ThreadNumber: j.ThreadNumber,
		JobNumber:    j.JobNumber,
		ScaleX:       j.Viewport.ScaleX,
		ScaleY:       j.Viewport.ScaleY,
		ScaleWidth:   j.Viewport.ScaleWidth,
		PixelWidth:   j.PixelWidth,
		PixelHeight:  j.PixelHeight,
		ColorRange:   j.ColorRange,
		ColorMap:     FormatColorMap(j.ColorMap),
		AntiAliasing: j.AntiAliasing,
		Interval:     j.MaxIteration,
		LineFrom:     j.Lines.From,
		LineTo:       j.Lines.To,
	}
}

// JobFromRequest decodes the wire form and builds the job's own palette.
func JobFromRequest(r JobRequest) (Job, error) {
	stops, err := ParseColorMap(r.ColorMap)
	if err != nil {
		return Job{}, err
	}
	j := Job{
		ThreadNumber: r.ThreadNumber,
		JobNumber:    r.JobNumber,
		Viewport:     Viewport{ScaleX: r.ScaleX, ScaleY: r.ScaleY, ScaleWidth: r.ScaleWidth},
		PixelWidth:   r.PixelWidth,
		PixelHeight:  r.PixelHeight,
		AntiAliasing: r.AntiAliasing,
		MaxIteration: r.Interval,
		ColorRange:   r.ColorRange,
		ColorMap:     stops,
		Lines:        LineRange{From: r.LineFrom, To: r.LineTo},
		Palette:      BuildPalette(r.ColorRange, stops),
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}
