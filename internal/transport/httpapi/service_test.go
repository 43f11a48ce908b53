package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"fractald/internal/eventbus"
	"fractald/internal/fractal"
	"fractald/internal/render/engine"
	logx "fractald/pkg/logx"
)

const waitTimeout = 5 * time.Second

func defaults() engine.Request {
	return engine.Request{
		Viewport:     fractal.Viewport{ScaleX: -2, ScaleY: -1.2, ScaleWidth: 3},
		PixelWidth:   32,
		PixelHeight:  16,
		AntiAliasing: 1,
		MaxIteration: 40,
		ColorRange:   16,
		ColorMap:     []fractal.RGB{{}, {R: 255, G: 255, B: 255}},
		Threads:      2,
	}
}

func newTestAPI(t *testing.T) (*Service, *engine.Service, *httptest.Server) {
	t.Helper()
	bus := eventbus.New()
	eng := engine.New(engine.Config{}, logx.Nop(), bus)
	eng.Start(context.Background())
	api := New(eng, nil, nil, bus, logx.Nop())
	api.mu.Lock()
	api.cfg = Config{Defaults: defaults(), ProgressPerSec: 1000}
	api.mu.Unlock()
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		eng.Stop(ctx)
	})
	return api, eng, ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitIdle(t *testing.T, eng *engine.Service) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for eng.Snapshot().State == engine.StateRendering {
		if time.Now().After(deadline) {
			t.Fatal("render did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRenderMergesDefaults(t *testing.T) {
	t.Parallel()
	_, eng, ts := newTestAPI(t)

	resp := post(t, ts.URL+"/api/render", `{"pixelWidth": 20, "colorMap": "0,0,0,255,0,0,0,0,255"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var reply epochReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil || reply.Epoch == 0 {
		t.Fatalf("reply = %+v, err = %v", reply, err)
	}
	waitIdle(t, eng)

	snap := eng.Snapshot()
	if snap.Request == nil || snap.Request.PixelWidth != 20 || snap.Request.PixelHeight != 16 || len(snap.Request.ColorMap) != 3 {
		t.Fatalf("request = %+v", snap.Request)
	}

	img, err := http.Get(ts.URL + "/api/image.png")
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	defer img.Body.Close()
	if ct := img.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	decoded, err := png.Decode(img.Body)
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 20 || b.Dy() != 16 {
		t.Fatalf("image bounds = %v", b)
	}

	hist, err := http.Get(ts.URL + "/api/history?limit=1")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer hist.Body.Close()
	var sums []engine.Summary
	if err := json.NewDecoder(hist.Body).Decode(&sums); err != nil || len(sums) != 1 || sums[0].Outcome != engine.StateCompleted {
		t.Fatalf("history = %+v, err = %v", sums, err)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestAPI(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "invalid render", path: "/api/render", body: `{"pixelWidth": 0}`, want: http.StatusBadRequest},
		{name: "bad color map", path: "/api/render", body: `{"colorMap": "1,2,x"}`, want: http.StatusBadRequest},
		{name: "unknown field", path: "/api/render", body: `{"bogus": 1}`, want: http.StatusBadRequest},
		{name: "stop when idle", path: "/api/stop", body: ``, want: http.StatusConflict},
		{name: "zoom without session", path: "/api/zoom", body: `{"rect": {"x0": 0, "y0": 0, "x1": 4, "y1": 4}}`, want: http.StatusConflict},
		{name: "zoom needs target", path: "/api/zoom", body: `{}`, want: http.StatusBadRequest},
		{name: "tour not configured", path: "/api/tour/next", body: ``, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := post(t, ts.URL+tt.path, tt.body)
		if resp.StatusCode != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}

	resp, err := http.Get(ts.URL + "/api/image.png")
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("image before render: status = %d", resp.StatusCode)
	}
}

func TestZoomViewport(t *testing.T) {
	t.Parallel()
	_, eng, ts := newTestAPI(t)

	if resp := post(t, ts.URL+"/api/render", `{}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("render status = %d", resp.StatusCode)
	}
	resp := post(t, ts.URL+"/api/zoom", `{"viewport": {"scaleX": -1, "scaleY": -0.5, "scaleWidth": 0.5}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("zoom status = %d", resp.StatusCode)
	}
	waitIdle(t, eng)
	if v := eng.Snapshot().Request.Viewport; v.ScaleX != -1 || v.ScaleWidth != 0.5 {
		t.Fatalf("viewport = %+v", v)
	}
}

func TestWebsocketStreamsCompletion(t *testing.T) {
	t.Parallel()
	_, _, ts := newTestAPI(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	var first struct {
		Type string          `json:"type"`
		Data engine.Snapshot `json:"data"`
	}
	if err := wsjson.Read(ctx, c, &first); err != nil || first.Type != eventStatus {
		t.Fatalf("first frame = %+v, err = %v", first, err)
	}

	if resp := post(t, ts.URL+"/api/render", `{"threads": 3}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("render status = %d", resp.StatusCode)
	}

	seen := map[string]bool{}
	for !seen[engine.EventCompleted] {
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, c, &ev); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen[ev.Type] = true
		if ev.Type == engine.EventCompleted {
			var sum engine.Summary
			if err := json.Unmarshal(ev.Data, &sum); err != nil {
				t.Fatalf("summary: %v", err)
			}
			if sum.Done != 16 || sum.ToDo != 16 || sum.Request.Threads != 3 {
				t.Fatalf("summary = %+v", sum)
			}
		}
	}
	if !seen[engine.EventStarted] {
		t.Fatalf("no started event before completion: %v", seen)
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}

func TestMergeRequestKeepsDefaultsIntact(t *testing.T) {
	t.Parallel()
	def := defaults()
	cm := "9,9,9"
	req, err := mergeRequest(def, renderBody{ColorMap: &cm})
	if err != nil {
		t.Fatalf("mergeRequest: %v", err)
	}
	req.ColorMap[0].R = 1
	if def.ColorMap[0].R != 0 || len(def.ColorMap) != 2 {
		t.Fatalf("defaults mutated: %+v", def.ColorMap)
	}
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(req)
	if !strings.Contains(buf.String(), `"pixelWidth":32`) {
		t.Fatalf("merged request = %s", buf.String())
	}
}
