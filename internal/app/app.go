package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"fractald/internal/config"
	"fractald/internal/eventbus"
	"fractald/internal/observability/pprof"
	"fractald/internal/render/engine"
	"fractald/internal/storage"
	"fractald/internal/tour"
	"fractald/internal/transport/httpapi"
	logx "fractald/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	engine *engine.Service
	tour   *tour.Service
	api    *httpapi.Service
	pprof  *pprof.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log := root.With(logx.String("comp", "app"))

	// Reject the initial file with the same rules a hot reload uses.
	if err := validateConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	engCfg, _ := mapEngineConfig(cfg)
	defaults, _ := mapRenderDefaults(cfg)
	engineSvc := engine.New(engCfg, root, bus)
	tourSvc := tour.New(mapTourConfig(cfg, defaults), engineSvc, root, bus)

	// A nil store must reach httpapi as a nil interface.
	var sessions httpapi.Sessions
	if store != nil {
		sessions = store
	}
	apiSvc := httpapi.New(engineSvc, tourSvc, sessions, bus, root)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		engine:  engineSvc,
		tour:    tourSvc,
		api:     apiSvc,
		pprof:   pprof.New(root),
	}, nil
}

// validateConfig runs every section mapper. It never starts anything.
func validateConfig(cfg *Config) error {
	if _, err := mapEngineConfig(cfg); err != nil {
		return err
	}
	defaults, err := mapRenderDefaults(cfg)
	if err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg, defaults); err != nil {
		return err
	}
	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if err := tour.Validate(mapTourConfig(cfg, defaults)); err != nil {
		return fmt.Errorf("tour: %w", err)
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Engine exposes the render engine (for embedding and tests).
func (a *App) Engine() *engine.Service { return a.engine }

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		return validateConfig(cfg)
	})

	a.engine.Start(a.sup.Context())

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256)
		a.sup.Go("history.record", func(c context.Context) error {
			defer unsub()
			return recordSessions(c, events, a.store, a.log.With(logx.String("comp", "history")))
		})
	}

	defaults, _ := mapRenderDefaults(cfg)
	srvCfg, _ := mapServerConfig(cfg, defaults)
	a.api.Reconfigure(a.sup.Context(), srvCfg)

	ppc, _ := mapPprofConfig(cfg)
	if err := a.pprof.Reconfigure(a.sup.Context(), ppc); err != nil {
		a.log.Warn("pprof not started", logx.Err(err))
	}

	if err := a.tour.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("tour: %w", err)
	}

	if cfg.Render.RenderOnStart {
		if epoch, err := a.engine.StartRender(defaults); err != nil {
			a.log.Warn("initial render failed", logx.Err(err))
		} else {
			a.log.Debug("initial render requested", logx.Uint64("epoch", epoch))
		}
	}

	// Debug-level event log; progress only at trace.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if e.Type == engine.EventProgress {
					a.log.Trace("event", logx.String("type", e.Type))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig pushes a validated config into the running services.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *Config) {
	sdNotify(a.log, daemon.SdNotifyReloading)
	defer sdNotify(a.log, daemon.SdNotifyReady)

	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	// The validator already accepted newCfg, so the mappers cannot fail here.
	engCfg, _ := mapEngineConfig(newCfg)
	a.engine.Apply(engCfg)

	defaults, _ := mapRenderDefaults(newCfg)
	srvCfg, _ := mapServerConfig(newCfg, defaults)
	a.api.Reconfigure(ctx, srvCfg)

	ppc, _ := mapPprofConfig(newCfg)
	if err := a.pprof.Reconfigure(ctx, ppc); err != nil {
		a.log.Warn("pprof not started", logx.Err(err))
	}

	if err := a.tour.Apply(ctx, mapTourConfig(newCfg, defaults)); err != nil {
		a.log.Warn("tour not restarted", logx.Err(err))
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Triggers first, then the engine, then the listeners that report on it.
	step("tour", 2*time.Second, func(c context.Context) error { a.tour.Stop(c); return nil })
	step("engine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("httpapi", 2*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
