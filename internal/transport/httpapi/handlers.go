package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"slices"
	"strconv"

	"fractald/internal/fractal"
	"fractald/internal/render/engine"
	"fractald/internal/tour"
	logx "fractald/pkg/logx"
)

const maxBodyBytes = 1 << 20

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	reply := statusReply{Render: s.eng.Snapshot()}
	if s.tour != nil {
		ts := s.tour.Snapshot()
		reply.Tour = &ts
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Service) handleRender(w http.ResponseWriter, r *http.Request) {
	var body renderBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := mergeRequest(s.config().Defaults, body)
	if err != nil {
		writeError(w, err)
		return
	}
	epoch, err := s.eng.StartRender(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, epochReply{Epoch: epoch})
}

func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.StopRender(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleZoom(w http.ResponseWriter, r *http.Request) {
	var body zoomBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	var (
		epoch uint64
		err   error
	)
	switch {
	case body.Viewport != nil && body.Rect != nil:
		err = fmt.Errorf("%w: give either viewport or rect", engine.ErrInvalidConfig)
	case body.Viewport != nil:
		epoch, err = s.eng.Zoom(*body.Viewport)
	case body.Rect != nil:
		epoch, err = s.eng.ZoomRect(image.Rect(body.Rect.X0, body.Rect.Y0, body.Rect.X1, body.Rect.Y1))
	default:
		err = fmt.Errorf("%w: viewport or rect required", engine.ErrInvalidConfig)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, epochReply{Epoch: epoch})
}

func (s *Service) handleImage(w http.ResponseWriter, r *http.Request) {
	img := s.eng.Image()
	if img == nil {
		writeError(w, engine.ErrNoSession)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.log.Warn("png encode failed", logx.Err(err))
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// handleHistory lists the engine's in-memory session summaries, newest first.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	hist := s.eng.Snapshot().History
	slices.Reverse(hist)
	if n := queryLimit(r, len(hist)); n < len(hist) {
		hist = hist[:n]
	}
	writeJSON(w, http.StatusOK, hist)
}

// handleSessions lists persisted session records.
func (s *Service) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "session storage disabled", http.StatusNotFound)
		return
	}
	recs, err := s.sessions.RecentSessions(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.log.Warn("session query failed", logx.Err(err))
		http.Error(w, "session query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Service) handleTourNext(w http.ResponseWriter, r *http.Request) {
	if s.tour == nil {
		http.Error(w, "tour not configured", http.StatusNotFound)
		return
	}
	v, err := s.tour.Advance()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

func mergeRequest(def engine.Request, b renderBody) (engine.Request, error) {
	req := def
	req.ColorMap = append([]fractal.RGB(nil), def.ColorMap...)
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setI := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&req.Viewport.ScaleX, b.ScaleX)
	setF(&req.Viewport.ScaleY, b.ScaleY)
	setF(&req.Viewport.ScaleWidth, b.ScaleWidth)
	setI(&req.PixelWidth, b.PixelWidth)
	setI(&req.PixelHeight, b.PixelHeight)
	setI(&req.AntiAliasing, b.AntiAliasing)
	setI(&req.MaxIteration, b.MaxIteration)
	setI(&req.ColorRange, b.ColorRange)
	setI(&req.Threads, b.Threads)
	if b.ColorMap != nil {
		stops, err := fractal.ParseColorMap(*b.ColorMap)
		if err != nil {
			return req, fmt.Errorf("%w: %w", engine.ErrInvalidConfig, err)
		}
		req.ColorMap = stops
	}
	return req, nil
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

var errBadBody = errors.New("invalid request body")

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadBody), errors.Is(err, engine.ErrInvalidConfig):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotRendering), errors.Is(err, engine.ErrNoSession), errors.Is(err, tour.ErrNoStops):
		code = http.StatusConflict
	case errors.Is(err, engine.ErrNotRunning):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
