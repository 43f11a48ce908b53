package tour

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"fractald/internal/eventbus"
	"fractald/internal/fractal"
	"fractald/internal/render/engine"
	logx "fractald/pkg/logx"
)

const warnEvery = time.Minute

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus
	eng Renderer

	c      *cron.Cron
	entry  cron.EntryID
	loc    *time.Location

	next    int
	visits  uint64
	last    *Visit
	lastErr string

	lastWarn atomic.Int64
}

func New(cfg Config, eng Renderer, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "tour")),
		bus: bus,
		eng: eng,
	}
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks the schedule and stops of cfg.
func Validate(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	ps, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		if _, err := specParser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	for i, st := range cfg.Stops {
		v := fractal.Viewport{ScaleX: st.CenterX, ScaleY: st.CenterY, ScaleWidth: st.Width}
		if !v.Valid() {
			return fmt.Errorf("stop %d (%s): width must be positive and coordinates finite", i, st.Name)
		}
		if st.MaxIteration < 0 {
			return fmt.Errorf("stop %d (%s): max_iteration must not be negative", i, st.Name)
		}
	}
	return nil
}

// Start begins triggering if the tour is enabled. Calling it twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	cur := s.cfg
	if !cur.Enabled {
		s.log.Debug("tour disabled")
		return nil
	}
	ps, err := ParseSchedule(cur.Schedule)
	if err != nil {
		return err
	}

	loc := s.loadLocationLocked()
	c := cron.New(cron.WithParser(specParser), cron.WithLocation(loc))
	job := cron.FuncJob(s.tick)
	var entry cron.EntryID
	switch ps.Kind {
	case SpecCron:
		entry, err = c.AddJob(ps.Cron, job)
		if err != nil {
			return fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
	case SpecInterval:
		// cron.Every rounds down to whole seconds.
		entry = c.Schedule(cron.Every(ps.Every), job)
	}
	c.Start()

	s.c, s.entry, s.loc = c, entry, loc
	s.log.Info("tour started",
		logx.String("schedule", cur.Schedule),
		logx.String("tz", loc.String()),
		logx.Int("stops", len(s.stopsLocked())),
		logx.Time("next", c.Entry(entry).Next),
	)
	return nil
}

// Apply swaps the config and restarts triggering when the schedule,
// timezone or enabled flag changed.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	if n := len(s.stopsLocked()); s.next >= n {
		s.next = 0
	}
	running := s.c != nil
	restart := old.Enabled != cfg.Enabled ||
		strings.TrimSpace(old.Schedule) != strings.TrimSpace(cfg.Schedule) ||
		strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone)
	var c *cron.Cron
	if running && restart {
		c = s.c
		s.c, s.entry = nil, 0
	}
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	stopCron(ctx, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	return s.startLocked()
}

// Stop stops triggering. A render already started keeps running.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c, s.entry = nil, 0
	s.mu.Unlock()

	if c != nil {
		stopCron(ctx, c)
		s.log.Info("tour stopped")
	}
}

func stopCron(ctx context.Context, c *cron.Cron) {
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Advance renders the next stop immediately and moves the cursor on.
func (s *Service) Advance() (Visit, error) {
	s.mu.Lock()
	stops := s.stopsLocked()
	if len(stops) == 0 {
		s.mu.Unlock()
		return Visit{}, ErrNoStops
	}
	idx := s.next % len(stops)
	s.next = (idx + 1) % len(stops)
	stop := stops[idx]
	req := requestFor(s.cfg.Base, stop)
	s.mu.Unlock()

	epoch, err := s.eng.StartRender(req)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		return Visit{}, fmt.Errorf("tour stop %q: %w", stop.Name, err)
	}
	v := Visit{Index: idx, Stop: stop, Epoch: epoch, At: time.Now()}
	s.visits++
	s.last = &v
	s.lastErr = ""
	s.mu.Unlock()

	s.log.Info("tour.visit", logx.String("stop", stop.Name), logx.Int("index", idx), logx.Uint64("epoch", epoch))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventVisit, Data: v})
	}
	return v, nil
}

func (s *Service) tick() {
	if _, err := s.Advance(); err != nil {
		now := time.Now()
		last := s.lastWarn.Load()
		if now.UnixNano()-last >= int64(warnEvery) && s.lastWarn.CompareAndSwap(last, now.UnixNano()) {
			s.log.Warn("tour render failed", logx.Err(err))
		}
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Schedule: s.cfg.Schedule,
		Timezone: s.cfg.Timezone,
		Stops:    append([]Stop(nil), s.stopsLocked()...),
		Visits:   s.visits,
		LastErr:  s.lastErr,
	}
	if s.loc != nil && snap.Timezone == "" {
		snap.Timezone = s.loc.String()
	}
	if s.last != nil {
		v := *s.last
		snap.Last = &v
	}
	if s.c != nil && s.entry != 0 {
		e := s.c.Entry(s.entry)
		snap.Next, snap.Prev = e.Next, e.Prev
	}
	return snap
}

func (s *Service) stopsLocked() []Stop {
	if len(s.cfg.Stops) == 0 {
		return DefaultStops()
	}
	return s.cfg.Stops
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func requestFor(base engine.Request, st Stop) engine.Request {
	req := base
	req.ColorMap = append([]fractal.RGB(nil), base.ColorMap...)
	req.Viewport = fractal.Centered(st.CenterX, st.CenterY, st.Width, base.PixelWidth, base.PixelHeight)
	if st.MaxIteration > 0 {
		req.MaxIteration = st.MaxIteration
	}
	return req
}
