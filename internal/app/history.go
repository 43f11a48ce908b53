package app

import (
	"context"
	"time"

	"fractald/internal/eventbus"
	"fractald/internal/render/engine"
	"fractald/internal/storage"
	logx "fractald/pkg/logx"
)

const appendTimeout = 2 * time.Second

// recordSessions persists every finished session summary seen on the bus.
func recordSessions(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type != engine.EventCompleted && ev.Type != engine.EventCancelled {
				continue
			}
			sum, ok := ev.Data.(engine.Summary)
			if !ok {
				continue
			}
			actx, cancel := context.WithTimeout(ctx, appendTimeout)
			err := store.AppendSession(actx, sessionRecord(sum))
			cancel()
			if err != nil {
				log.Warn("session append failed", logx.Uint64("epoch", sum.Epoch), logx.Err(err))
			}
		}
	}
}

func sessionRecord(sum engine.Summary) storage.SessionRecord {
	req := sum.Request
	return storage.SessionRecord{
		ID:           storage.NewSessionID(),
		Epoch:        sum.Epoch,
		Viewport:     req.Viewport,
		Width:        req.PixelWidth,
		Height:       req.PixelHeight,
		AntiAliasing: req.AntiAliasing,
		MaxIteration: req.MaxIteration,
		ColorRange:   req.ColorRange,
		Threads:      req.Threads,
		Outcome:      sum.Outcome.String(),
		Reason:       sum.Reason,
		Lines:        sum.Done,
		FailedJobs:   sum.FailedJobs,
		Started:      sum.Started,
		Duration:     sum.Duration,
	}
}
