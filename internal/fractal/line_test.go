package fractal

import (
	"context"
	"errors"
	"testing"
)

func testJob(w, h, aa, maxIter, colorRange int, v Viewport) Job {
	stops := []RGB{{0, 0, 0}, {255, 128, 0}, {255, 255, 255}}
	return Job{
		ThreadNumber: 0,
		JobNumber:    1,
		Viewport:     v,
		PixelWidth:   w,
		PixelHeight:  h,
		AntiAliasing: aa,
		MaxIteration: maxIter,
		ColorRange:   colorRange,
		ColorMap:     stops,
		Lines:        LineRange{From: 0, To: h - 1},
		Palette:      BuildPalette(colorRange, stops),
	}
}

func collect(ctx context.Context, job Job) ([]Message, bool) {
	var msgs []Message
	ok := RenderLines(ctx, job, func(m Message) bool {
		msgs = append(msgs, m)
		return true
	})
	return msgs, ok
}

func TestRenderLinesSmallEscapingRegion(t *testing.T) {
	t.Parallel()
	job := testJob(4, 2, 1, 50, 16, Viewport{ScaleX: 2.5, ScaleY: 2.5, ScaleWidth: 1})
	if err := job.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	msgs, ok := collect(context.Background(), job)
	if !ok {
		t.Fatal("expected RenderLines to finish")
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 0; i < 2; i++ {
		m := msgs[i]
		if m.Done || m.LineNumber != i || m.JobNumber != 1 {
			t.Fatalf("message %d = %+v", i, m)
		}
		if len(m.Pixels) != 4*4 {
			t.Fatalf("line %d has %d bytes, want 16", i, len(m.Pixels))
		}
		want := job.Palette.At(1)
		for px := 0; px < 4; px++ {
			o := 4 * px
			if m.Pixels[o+3] != 255 {
				t.Fatalf("line %d pixel %d alpha = %d", i, px, m.Pixels[o+3])
			}
			if got := (RGB{m.Pixels[o], m.Pixels[o+1], m.Pixels[o+2]}); got != want {
				t.Fatalf("line %d pixel %d = %v, want %v", i, px, got, want)
			}
		}
	}
	if !msgs[2].Done || msgs[2].Err != nil {
		t.Fatalf("last message = %+v, want clean Done", msgs[2])
	}
}

func TestRenderLinesWrapsPalette(t *testing.T) {
	t.Parallel()
	// Every sample is inside the set, so the count is maxIteration and
	// the colour is palette[20 % 16].
	job := testJob(3, 3, 2, 20, 16, Viewport{ScaleX: -0.01, ScaleY: -0.01, ScaleWidth: 0.02})
	msgs, _ := collect(context.Background(), job)
	want := job.Palette.At(4)
	for _, m := range msgs[:len(msgs)-1] {
		for px := 0; px < 3; px++ {
			o := 4 * px
			if got := (RGB{m.Pixels[o], m.Pixels[o+1], m.Pixels[o+2]}); got != want {
				t.Fatalf("line %d pixel %d = %v, want %v", m.LineNumber, px, got, want)
			}
		}
	}
}

func TestRenderLinesAveragesSamples(t *testing.T) {
	t.Parallel()
	// One pixel straddling the set boundary; the four samples sit at
	// x in {0.2, 0.7} and y in {0, 0.5}.
	job := testJob(1, 1, 2, 30, 32, Viewport{ScaleX: 0.2, ScaleY: 0, ScaleWidth: 1})
	var want [3]int
	for sy := 0; sy < 2; sy++ {
		for sx := 0; sx < 2; sx++ {
			c := job.Palette.At(IterationsAt(0.2+0.5*float64(sx), 0.5*float64(sy), 30) % 32)
			want[0] += int(c.R)
			want[1] += int(c.G)
			want[2] += int(c.B)
		}
	}
	msgs, _ := collect(context.Background(), job)
	px := msgs[0].Pixels
	if int(px[0]) != want[0]/4 || int(px[1]) != want[1]/4 || int(px[2]) != want[2]/4 {
		t.Fatalf("pixel = %v, want sums %v / 4", px, want)
	}
}

func TestRenderLinesStopsOnCancel(t *testing.T) {
	t.Parallel()
	job := testJob(4, 4, 1, 10, 8, Viewport{ScaleX: -2, ScaleY: -1, ScaleWidth: 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msgs, ok := collect(ctx, job)
	if ok || len(msgs) != 0 {
		t.Fatalf("cancelled render produced %d messages (ok=%v)", len(msgs), ok)
	}

	// A refusing receiver also stops the job, without a Done.
	var n int
	ok = RenderLines(context.Background(), job, func(Message) bool {
		n++
		return n < 2
	})
	if ok || n != 2 {
		t.Fatalf("refused emit: ok=%v sent=%d", ok, n)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()
	job := testJob(2, 2, 1, 10, 8, Viewport{ScaleX: -2, ScaleY: -1, ScaleWidth: 3})
	job.ThreadNumber = 3

	var msgs []Message
	ok := Run(context.Background(), job, func(ctx context.Context, j Job, emit func(Message) bool) bool {
		emit(Message{ThreadNumber: j.ThreadNumber, JobNumber: j.JobNumber, LineNumber: 0})
		panic("evaluation fault")
	}, func(m Message) bool {
		msgs = append(msgs, m)
		return true
	})
	if ok {
		t.Fatal("expected Run to report failure")
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want line + failed done", len(msgs))
	}
	last := msgs[1]
	if !last.Done || last.ThreadNumber != 3 || !errors.Is(last.Err, ErrJobPanicked) {
		t.Fatalf("failure message = %+v", last)
	}

	// A palette that does not match ColorRange panics inside the kernel.
	broken := job
	broken.Palette = Palette{}
	msgs = nil
	Run(context.Background(), broken, nil, func(m Message) bool {
		msgs = append(msgs, m)
		return true
	})
	if len(msgs) != 1 || !errors.Is(msgs[0].Err, ErrJobPanicked) {
		t.Fatalf("broken palette messages = %+v", msgs)
	}
}
