// Package handle serves the scan workflow as a JSON API.
package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
)

var errNoSession = errors.New("unknown session")

type Handle struct {
	sessions *scan.Sessions
	svc      *scan.Service
	engines  *ocr.Manager
	store    roster.Store
	ping     func(context.Context) error
	log      *slog.Logger
}

type Option func(*Handle)

// WithStore enables the sheet and growth endpoints.
func WithStore(st roster.Store) Option { return func(h *Handle) { h.store = st } }

// WithPing makes /healthz check a dependency such as the database.
func WithPing(fn func(context.Context) error) Option { return func(h *Handle) { h.ping = fn } }

func WithLogger(l *slog.Logger) Option { return func(h *Handle) { h.log = l } }

func New(sessions *scan.Sessions, svc *scan.Service, engines *ocr.Manager, opts ...Option) *Handle {
	h := &Handle{sessions: sessions, svc: svc, engines: engines, log: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts every route on mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/scan", h.Scan)
	mux.HandleFunc("/v1/roster", h.Roster)
	mux.HandleFunc("/v1/confirm", h.Confirm)
	mux.HandleFunc("/v1/discard", h.Discard)
	mux.HandleFunc("/v1/pending", h.Pending)
	mux.HandleFunc("/v1/sheet", h.Sheet)
	mux.HandleFunc("/v1/growth", h.Growth)
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var ve *roster.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, errNoSession), errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
		return false
	}
	return true
}

func (h *Handle) session(id string) (*scan.Session, error) {
	if id == "" {
		return nil, &roster.ValidationError{Field: "session_id", Msg: "missing session_id"}
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", errNoSession, id)
	}
	return s, nil
}

// requestTimeout reads X-Request-Timeout or ?timeoutSec=, in seconds.
func requestTimeout(r *http.Request, def time.Duration) time.Duration {
	ts := r.Header.Get("X-Request-Timeout")
	if ts == "" {
		ts = r.URL.Query().Get("timeoutSec")
	}
	if v, _ := strconv.Atoi(ts); v > 0 {
		return time.Duration(v) * time.Second
	}
	return def
}
