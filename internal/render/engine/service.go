package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"fractald/internal/eventbus"
	"fractald/internal/fractal"
	logx "fractald/pkg/logx"

	rtsup "fractald/internal/runtime/supervisor"
)

const warnThrottleEvery = 5 * time.Second

// Service is the render coordinator. It owns the output image and all
// epoch bookkeeping; workers only ever hand it messages.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	log      logx.Logger
	bus      eventbus.Bus
	handlers Handlers

	// render is the per-job kernel; tests swap it to inject faults.
	render fractal.Renderer

	sup      *rtsup.Supervisor
	results  chan fractal.Message
	stopCh   chan struct{}
	stopDone chan struct{}
	out      *outbox

	state      State
	epoch      uint64
	req        *Request
	jobs       []fractal.Job
	cancelJobs context.CancelFunc
	img        *image.RGBA
	rows       []bool
	done       int
	live       int // jobs of the current epoch that have not sent Done
	failed     int
	started    time.Time

	history []Summary

	staleDiscarded  uint64
	lastStaleWarnAt int64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	if cfg.Background == (color.RGBA{}) {
		cfg.Background = color.RGBA{A: 0xff}
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "render")),
		bus:    bus,
		render: fractal.RenderLines,
	}
}

// SetHandlers replaces the callbacks. Safe to call at any time.
func (s *Service) SetHandlers(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

// Apply swaps the engine settings. QueueSize takes effect on the next Start;
// the rest applies to the next session.
func (s *Service) Apply(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	if cfg.Background == (color.RGBA{}) {
		cfg.Background = color.RGBA{A: 0xff}
	}
	s.mu.Lock()
	s.cfg = cfg
	if len(s.history) > cfg.HistorySize {
		s.history = append([]Summary(nil), s.history[len(s.history)-cfg.HistorySize:]...)
	}
	s.mu.Unlock()
}

func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	// Start is idempotent.
	if s.stopCh != nil {
		done := s.stopDone
		s.mu.Unlock()
		if done == nil {
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	s.results = make(chan fractal.Message, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	s.out = newOutbox()
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup, stopCh, results, out := s.sup, s.stopCh, s.results, s.out
	queue := cap(results)
	s.mu.Unlock()

	sup.GoRestart("render.ingest", func(c context.Context) error {
		s.ingest(c, stopCh, results)
		return exitReason(c, stopCh, "ingest")
	}, rtsup.WithPublishFirstError(true))

	sup.GoRestart("render.dispatch", func(c context.Context) error {
		s.dispatch(c, stopCh, out)
		return exitReason(c, stopCh, "dispatch")
	}, rtsup.WithPublishFirstError(true))

	s.log.Info("render engine started", logx.Int("queue", queue))
}

func exitReason(ctx context.Context, stopCh <-chan struct{}, loop string) error {
	select {
	case <-stopCh:
		return context.Canceled
	default:
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s loop exited unexpectedly", loop)
}

// Stop cancels any render in flight and waits for the workers and loops to
// exit (bounded by ctx).
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	if s.state == StateRendering {
		s.cancelLocked("shutdown")
	}
	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup := s.sup
	s.mu.Unlock()

	sup.Cancel()
	go func() {
		_ = sup.Wait(context.Background())
		s.mu.Lock()
		s.results = nil
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		s.out = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("render engine stopped")
	case <-ctx.Done():
		s.log.Warn("render engine stop timed out", logx.Err(ctx.Err()))
	}
}

// StartRender validates req and begins a new session, cancelling any render
// in flight. It returns the new epoch.
func (s *Service) StartRender(req Request) (uint64, error) {
	if err := s.validate(req); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.runningLocked() {
		return 0, ErrNotRunning
	}
	if s.state == StateRendering {
		s.cancelLocked("restarted")
	}
	return s.beginLocked(req), nil
}

// StopRender cancels the current session. No completion is reported for it.
func (s *Service) StopRender() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRendering {
		return ErrNotRendering
	}
	s.cancelLocked("stopped")
	return nil
}

// Zoom restarts the last session's parameters on viewport v.
func (s *Service) Zoom(v fractal.Viewport) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.runningLocked() {
		return 0, ErrNotRunning
	}
	if s.req == nil {
		return 0, ErrNoSession
	}
	return s.zoomLocked(v)
}

// ZoomRect zooms into a pixel rectangle of the current image.
func (s *Service) ZoomRect(r image.Rectangle) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.runningLocked() {
		return 0, ErrNotRunning
	}
	if s.req == nil {
		return 0, ErrNoSession
	}
	v, err := s.req.Viewport.Zoom(r, s.req.PixelWidth, s.req.PixelHeight)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s.zoomLocked(v)
}

func (s *Service) zoomLocked(v fractal.Viewport) (uint64, error) {
	req := *s.req
	req.Viewport = v
	if err := req.Validate(s.cfg.MaxPixels); err != nil {
		return 0, err
	}
	if s.state == StateRendering {
		s.cancelLocked("zoom")
	}
	s.pushLocked(EventZoom, ZoomEvent{Epoch: s.epoch + 1, Viewport: v})
	return s.beginLocked(req), nil
}

// Image returns a copy of the output buffer, or nil before the first render.
func (s *Service) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil
	}
	cp := image.NewRGBA(s.img.Rect)
	copy(cp.Pix, s.img.Pix)
	return cp
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Running:        s.runningLocked(),
		State:          s.state,
		Epoch:          s.epoch,
		FailedJobs:     s.failed,
		StaleDiscarded: atomic.LoadUint64(&s.staleDiscarded),
		History:        append([]Summary(nil), s.history...),
	}
	if s.results != nil {
		snap.QueueLen = len(s.results)
		snap.QueueCap = cap(s.results)
	}
	if s.req != nil {
		req := *s.req
		snap.Request = &req
		snap.Progress = Progress{Epoch: s.epoch, Done: s.done, ToDo: req.PixelHeight}
	}
	if s.state == StateRendering {
		for _, j := range s.jobs {
			snap.Jobs = append(snap.Jobs, j.Request())
		}
	}
	return snap
}

func (s *Service) validate(req Request) error {
	s.mu.Lock()
	maxPixels := s.cfg.MaxPixels
	s.mu.Unlock()
	return req.Validate(maxPixels)
}

func (s *Service) runningLocked() bool {
	return s.stopCh != nil && s.stopDone == nil
}

// beginLocked opens a new epoch: one palette, one image, one job per line
// range, all workers launched before it returns.
func (s *Service) beginLocked(req Request) uint64 {
	s.epoch++
	epoch := s.epoch
	now := time.Now()

	palette := fractal.BuildPalette(req.ColorRange, req.ColorMap)
	ranges := fractal.Partition(req.PixelHeight, req.Threads)

	img := image.NewRGBA(image.Rect(0, 0, req.PixelWidth, req.PixelHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: s.cfg.Background}, image.Point{}, draw.Src)

	ctx, cancel := context.WithCancel(s.sup.Context())
	jobs := make([]fractal.Job, len(ranges))
	for i, lr := range ranges {
		jobs[i] = fractal.Job{
			ThreadNumber: i,
			JobNumber:    epoch,
			Viewport:     req.Viewport,
			PixelWidth:   req.PixelWidth,
			PixelHeight:  req.PixelHeight,
			AntiAliasing: req.AntiAliasing,
			MaxIteration: req.MaxIteration,
			ColorRange:   req.ColorRange,
			ColorMap:     req.ColorMap,
			Lines:        lr,
			Palette:      palette,
		}
	}

	s.req = &req
	s.jobs = jobs
	s.cancelJobs = cancel
	s.img = img
	s.rows = make([]bool, req.PixelHeight)
	s.done = 0
	s.live = len(jobs)
	s.failed = 0
	s.started = now
	s.state = StateRendering

	s.pushLocked(EventStarted, Started{Epoch: epoch, Request: req, Workers: len(jobs)})
	s.pushLocked(EventProgress, Progress{Epoch: epoch, Done: 0, ToDo: req.PixelHeight})

	results := s.results
	render := s.render
	emit := func(m fractal.Message) bool {
		select {
		case results <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for _, job := range jobs {
		job := job
		s.sup.Go(fmt.Sprintf("render.worker.%d", job.ThreadNumber), func(context.Context) error {
			fractal.Run(ctx, job, render, emit)
			return nil
		})
	}

	s.log.Info("render started",
		logx.Uint64("epoch", epoch),
		logx.Int("width", req.PixelWidth),
		logx.Int("height", req.PixelHeight),
		logx.Int("workers", len(jobs)),
		logx.Int("aa", req.AntiAliasing),
		logx.Int("max_iteration", req.MaxIteration),
		logx.Float64("scale_x", req.Viewport.ScaleX),
		logx.Float64("scale_y", req.Viewport.ScaleY),
		logx.Float64("scale_width", req.Viewport.ScaleWidth),
	)
	return epoch
}

// cancelLocked invalidates the current epoch and tears its workers down.
func (s *Service) cancelLocked(reason string) {
	sum := s.summaryLocked(StateCancelled, reason)
	s.epoch++
	if s.cancelJobs != nil {
		s.cancelJobs()
		s.cancelJobs = nil
	}
	s.state = StateCancelled
	s.recordLocked(sum)
	s.pushLocked(EventCancelled, sum)
	s.state = StateIdle

	s.log.Info("render cancelled",
		logx.Uint64("epoch", sum.Epoch),
		logx.String("reason", reason),
		logx.Int("done", sum.Done),
		logx.Int("todo", sum.ToDo),
	)
}

func (s *Service) completeLocked() {
	sum := s.summaryLocked(StateCompleted, "")
	if s.cancelJobs != nil {
		s.cancelJobs()
		s.cancelJobs = nil
	}
	s.state = StateCompleted
	s.recordLocked(sum)
	s.pushLocked(EventCompleted, sum)
	s.state = StateIdle

	fields := []logx.Field{
		logx.Uint64("epoch", sum.Epoch),
		logx.Duration("duration", sum.Duration),
		logx.Int("lines", sum.Done),
	}
	if sum.FailedJobs > 0 {
		s.log.Warn("render completed with failed jobs", append(fields, logx.Int("failed_jobs", sum.FailedJobs))...)
		return
	}
	s.log.Info("render completed", fields...)
}

func (s *Service) summaryLocked(outcome State, reason string) Summary {
	sum := Summary{
		Epoch:      s.epoch,
		Outcome:    outcome,
		Reason:     reason,
		Done:       s.done,
		FailedJobs: s.failed,
		Started:    s.started,
		Duration:   time.Since(s.started),
	}
	if s.req != nil {
		sum.Request = *s.req
		sum.ToDo = s.req.PixelHeight
	}
	return sum
}

func (s *Service) recordLocked(sum Summary) {
	s.history = append(s.history, sum)
	if n := s.cfg.HistorySize; len(s.history) > n {
		s.history = s.history[len(s.history)-n:]
	}
}

func (s *Service) pushLocked(typ string, data any) {
	if s.out == nil {
		return
	}
	s.out.push(notice{typ: typ, at: time.Now(), data: data})
}

func (s *Service) shouldWarn(last *int64, now time.Time) bool {
	prev := atomic.LoadInt64(last)
	n := now.UnixNano()
	if prev != 0 && (n-prev) < int64(warnThrottleEvery) {
		return false
	}
	return atomic.CompareAndSwapInt64(last, prev, n)
}
