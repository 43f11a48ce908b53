package fractal

import (
	"context"
	"errors"
	"fmt"
)

var ErrJobPanicked = errors.New("render job panicked")

// Renderer produces the messages of one job. It returns false when it
// stopped early because ctx was cancelled or emit refused a message.
type Renderer func(ctx context.Context, job Job, emit func(Message) bool) bool

// RenderLines renders job.Lines in ascending order, emitting one line
// message per row followed by a single Done message. Each pixel averages an
// A x A grid of samples placed at k*cell/A from the pixel's corner.
func RenderLines(ctx context.Context, job Job, emit func(Message) bool) bool {
	w, h := job.PixelWidth, job.PixelHeight
	aa := job.AntiAliasing
	samples := aa * aa

	scaleHeight := job.Viewport.ScaleHeight(w, h)
	stepX := job.Viewport.ScaleWidth / float64(w) / float64(aa)
	stepY := scaleHeight / float64(h) / float64(aa)

	for line := job.Lines.From; line <= job.Lines.To; line++ {
		if ctx.Err() != nil {
			return false
		}
		row := make([]byte, 4*w)
		for col := 0; col < w; col++ {
			x0, y0 := job.Viewport.At(float64(col), float64(line), w, h)
			var r, g, b int
			for sy := 0; sy < aa; sy++ {
				y := y0 + float64(sy)*stepY
				for sx := 0; sx < aa; sx++ {
					it := IterationsAt(x0+float64(sx)*stepX, y, job.MaxIteration)
					c := job.Palette.At(it % job.ColorRange)
					r += int(c.R)
					g += int(c.G)
					b += int(c.B)
				}
			}
			o := 4 * col
			row[o] = uint8(r / samples)
			row[o+1] = uint8(g / samples)
			row[o+2] = uint8(b / samples)
			row[o+3] = 0xff
		}
		if !emit(Message{ThreadNumber: job.ThreadNumber, JobNumber: job.JobNumber, LineNumber: line, Pixels: row}) {
			return false
		}
	}
	return emit(Message{Done: true, ThreadNumber: job.ThreadNumber, JobNumber: job.JobNumber})
}

// Run is the worker boundary: it runs render and turns a panic into a failed
// Done message so sibling jobs and the coordinator keep going.
func Run(ctx context.Context, job Job, render Renderer, emit func(Message) bool) (ok bool) {
	if render == nil {
		render = RenderLines
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			emit(Message{
				Done:         true,
				ThreadNumber: job.ThreadNumber,
				JobNumber:    job.JobNumber,
				Err:          fmt.Errorf("%w: thread %d: %v", ErrJobPanicked, job.ThreadNumber, r),
			})
		}
	}()
	return render(ctx, job, emit)
}
