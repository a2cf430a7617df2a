package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/skypeer/internal/pilot/api"
	"github.com/autopeer-io/skypeer/internal/pilot/command"
	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/pkg/log"
)

const mjpegBoundary = "skypeerframe"

// maxBody caps request bodies.
const maxBody = 1 << 16

type handlers struct {
	op        api.Operator
	frames    FrameStream
	streamFPS int

	// closing ends open video streams. Nil never fires.
	closing <-chan struct{}
}

// actionFunc turns a request into an operator action.
type actionFunc func(r *http.Request) (api.Action, error)

func (h *handlers) ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *handlers) action(decode actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", api.ErrInvalidAction, err))
			return
		}

		result, err := api.Dispatch(r.Context(), h.op, a)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if result == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *handlers) mjpeg(w http.ResponseWriter, r *http.Request) {
	if h.frames == nil {
		writeError(w, http.StatusNotFound, errors.New("video is disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	fps := h.streamFPS
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	ready, cancel := h.frames.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug("MJPEG client connected", "remote", r.RemoteAddr)
	defer log.Debug("MJPEG client disconnected", "remote", r.RemoteAddr)

	var (
		buf     bytes.Buffer
		lastSeq uint64
		sent    bool
	)
	for first := true; ; first = false {
		if !first {
			select {
			case <-r.Context().Done():
				return
			case <-h.closing:
				return
			case <-ready:
			}
		}

		f := h.frames.Frame()
		if f.Degenerate() || (sent && f.Seq == lastSeq) {
			continue
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, f.Image(), &jpeg.Options{Quality: 80}); err != nil {
			log.Error(err, "Failed to encode MJPEG frame", "seq", f.Seq)
			continue
		}
		if err := writePart(w, buf.Bytes()); err != nil {
			return
		}
		flusher.Flush()
		lastSeq, sent = f.Seq, true

		select {
		case <-r.Context().Done():
			return
		case <-h.closing:
			return
		case <-ticker.C:
		}
	}
}

func writePart(w io.Writer, jpg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpg)); err != nil {
		return err
	}
	if _, err := w.Write(jpg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func statusAction(*http.Request) (api.Action, error) {
	return api.Action{Action: api.ActionStatus}, nil
}

func fixedAction(name string) actionFunc {
	return func(*http.Request) (api.Action, error) {
		return api.Action{Action: name}, nil
	}
}

func bodyAction(r *http.Request) (api.Action, error) {
	var a api.Action
	err := decodeBody(r, &a)
	return a, err
}

func loadAction(r *http.Request) (api.Action, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		return api.Action{}, err
	}
	return api.Action{Action: api.ActionLoad, Path: req.Path}, nil
}

// directionAction reads the direction from the path and an optional
// ?value= magnitude.
func directionAction(name string) actionFunc {
	return func(r *http.Request) (api.Action, error) {
		a := api.Action{Action: name, Direction: mux.Vars(r)["direction"]}
		if v := r.URL.Query().Get("value"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return api.Action{}, fmt.Errorf("value %q is not an integer", v)
			}
			a.Value = n
		}
		return a, nil
	}
}

func valueAction(name string) actionFunc {
	return func(r *http.Request) (api.Action, error) {
		var req struct {
			Value *int `json:"value"`
		}
		if err := decodeBody(r, &req); err != nil {
			return api.Action{}, err
		}
		if req.Value == nil {
			return api.Action{}, errors.New("value is required")
		}
		return api.Action{Action: name, Value: *req.Value}, nil
	}
}

func videoAction(r *http.Request) (api.Action, error) {
	a := api.Action{Action: api.ActionVideo}
	err := decodeBody(r, &a)
	a.Action = api.ActionVideo
	return a, err
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// statusFor maps operator errors to HTTP status codes.
func statusFor(err error) int {
	var perr *command.ParseError
	switch {
	case errors.Is(err, core.ErrGuardRejected),
		errors.Is(err, core.ErrAlreadyRunning),
		errors.Is(err, core.ErrRouteBusy):
		return http.StatusConflict
	case errors.Is(err, api.ErrInvalidAction),
		errors.Is(err, core.ErrOutOfRange),
		errors.As(err, &perr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRouteIO):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNoFrame):
		return http.StatusNotFound
	case errors.Is(err, core.ErrLink):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
