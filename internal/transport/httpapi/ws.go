package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"fractald/internal/eventbus"
	"fractald/internal/render/engine"
	logx "fractald/pkg/logx"
)

const (
	wsBuffer       = 256
	wsWriteTimeout = 5 * time.Second
	eventStatus    = "status"
)

// handleWS streams render and tour events as JSON frames. The first frame
// is a status snapshot. Progress is coalesced per client: when the limiter
// refuses, only the newest progress is kept and sent later; any other event
// supersedes it.
func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: cfg.OriginPatterns})
	if err != nil {
		s.log.Debug("websocket accept failed", logx.Err(err))
		return
	}
	defer c.CloseNow()

	// Clients only listen; CloseRead handles their close frame.
	ctx := c.CloseRead(r.Context())

	events, unsub := s.bus.Subscribe(wsBuffer)
	defer unsub()

	if err := send(ctx, c, wireEvent{Type: eventStatus, Time: time.Now(), Data: s.eng.Snapshot()}); err != nil {
		return
	}

	lim := rate.NewLimiter(rate.Limit(cfg.ProgressPerSec), 1)
	flush := time.NewTicker(time.Duration(float64(time.Second) / cfg.ProgressPerSec))
	defer flush.Stop()

	var pending *eventbus.Event
	for {
		var out *eventbus.Event
		select {
		case <-ctx.Done():
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "")
				return
			}
			if !forwarded(ev.Type) {
				continue
			}
			if ev.Type == engine.EventProgress && !lim.Allow() {
				pending = &ev
				continue
			}
			pending = nil
			out = &ev
		case <-flush.C:
			if pending == nil || !lim.Allow() {
				continue
			}
			out, pending = pending, nil
		}
		if err := send(ctx, c, wireEvent{Type: out.Type, Time: out.Time, Data: out.Data}); err != nil {
			s.log.Debug("websocket send failed", logx.Err(err))
			return
		}
	}
}

func forwarded(typ string) bool {
	return strings.HasPrefix(typ, "render.") || strings.HasPrefix(typ, "tour.")
}

func send(ctx context.Context, c *websocket.Conn, ev wireEvent) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, ev)
}
