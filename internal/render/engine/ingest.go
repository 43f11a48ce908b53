package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fractald/internal/eventbus"
	"fractald/internal/fractal"
	logx "fractald/pkg/logx"
)

func (s *Service) ingest(ctx context.Context, stopCh <-chan struct{}, results <-chan fractal.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case m := <-results:
			s.apply(m)
		}
	}
}

// apply folds one worker message into the session. Messages of any other
// epoch are dropped before they can touch the image.
func (s *Service) apply(m fractal.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.JobNumber != s.epoch || s.state != StateRendering {
		n := atomic.AddUint64(&s.staleDiscarded, 1)
		if s.shouldWarn(&s.lastStaleWarnAt, time.Now()) {
			s.log.Debug("stale render message discarded",
				logx.Uint64("job_epoch", m.JobNumber),
				logx.Uint64("epoch", s.epoch),
				logx.Uint64("stale_discarded", n),
			)
		}
		return
	}

	if !m.Done {
		if err := s.writeLineLocked(m); err != nil {
			s.log.Warn("render line rejected", logx.Int("thread", m.ThreadNumber), logx.Err(err))
			return
		}
		s.pushLocked(EventProgress, Progress{Epoch: s.epoch, Done: s.done, ToDo: s.req.PixelHeight})
		return
	}

	s.live--
	if m.Err != nil {
		s.failed++
		f := JobFailure{Epoch: s.epoch, ThreadNumber: m.ThreadNumber, Error: m.Err.Error()}
		if m.ThreadNumber >= 0 && m.ThreadNumber < len(s.jobs) {
			f.Lines = s.jobs[m.ThreadNumber].Lines
			s.blankLinesLocked(f.Lines)
		}
		s.pushLocked(EventJobFailed, f)
		s.log.Error("render job failed",
			logx.Uint64("epoch", s.epoch),
			logx.Int("thread", m.ThreadNumber),
			logx.Int("line_from", f.Lines.From),
			logx.Int("line_to", f.Lines.To),
			logx.Err(m.Err),
		)
	}
	if s.live <= 0 {
		s.completeLocked()
	}
}

func (s *Service) writeLineLocked(m fractal.Message) error {
	if m.LineNumber < 0 || m.LineNumber >= len(s.rows) {
		return fmt.Errorf("%w: line %d outside 0..%d", errBadLine, m.LineNumber, len(s.rows)-1)
	}
	if len(m.Pixels) != s.img.Stride {
		return fmt.Errorf("%w: line %d has %d bytes, want %d", errBadLine, m.LineNumber, len(m.Pixels), s.img.Stride)
	}
	off := m.LineNumber * s.img.Stride
	copy(s.img.Pix[off:off+s.img.Stride], m.Pixels)
	if !s.rows[m.LineNumber] {
		s.rows[m.LineNumber] = true
		s.done++
	}
	return nil
}

// blankLinesLocked repaints a failed job's rows with the background. The done
// counter is left alone so progress never goes backwards.
func (s *Service) blankLinesLocked(lr fractal.LineRange) {
	bg := s.cfg.Background
	for y := max(lr.From, 0); y <= lr.To && y < len(s.rows); y++ {
		row := s.img.Pix[y*s.img.Stride : (y+1)*s.img.Stride]
		for i := 0; i < len(row); i += 4 {
			row[i], row[i+1], row[i+2], row[i+3] = bg.R, bg.G, bg.B, bg.A
		}
	}
}

type notice struct {
	typ  string
	at   time.Time
	data any
}

// outbox queues notices in the order the state changed. push never blocks,
// so it is safe under the engine lock.
type outbox struct {
	mu    sync.Mutex
	items []notice
	wake  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) push(n notice) {
	o.mu.Lock()
	o.items = append(o.items, n)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) drain() []notice {
	o.mu.Lock()
	items := o.items
	o.items = nil
	o.mu.Unlock()
	return items
}

// dispatch delivers notices to the handlers and the bus, one at a time.
// Notices queued by the shutdown cancel are flushed before it returns.
func (s *Service) dispatch(ctx context.Context, stopCh <-chan struct{}, out *outbox) {
	for {
		stopping := false
		select {
		case <-ctx.Done():
			stopping = true
		case <-stopCh:
			stopping = true
		case <-out.wake:
		}
		for _, n := range out.drain() {
			s.deliver(n)
		}
		if stopping {
			return
		}
	}
}

func (s *Service) deliver(n notice) {
	s.mu.Lock()
	h := s.handlers
	s.mu.Unlock()

	switch v := n.data.(type) {
	case Progress:
		if h.OnProgress != nil {
			h.OnProgress(v)
		}
	case Summary:
		if v.Outcome == StateCompleted && h.OnComplete != nil {
			h.OnComplete(v)
		}
		if v.Outcome == StateCancelled && h.OnCancel != nil {
			h.OnCancel(v)
		}
	case ZoomEvent:
		if h.OnZoom != nil {
			h.OnZoom(v)
		}
	case JobFailure:
		if h.OnJobFailed != nil {
			h.OnJobFailed(v)
		}
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: n.typ, Time: n.at, Data: n.data})
	}
}
