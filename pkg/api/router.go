// Package api exposes the operator surface over HTTP with JSON bodies.
//
// Routes:
//   - GET    /status                          running state, port, service rate, tunables
//   - POST   /server/start                    start serving {"root": "...", "port": 8080}
//   - POST   /server/stop                     stop listening
//   - GET    /admission                       whitelist and blacklist
//   - PUT    /admission/whitelist/{addr}      whitelist an address
//   - DELETE /admission/whitelist/{addr}      remove an address from the whitelist
//   - PUT    /admission/blacklist/{addr}      blacklist an address
//   - DELETE /admission/blacklist/{addr}      remove an address from the blacklist
//   - PUT    /admission/sample-size           {"value": 5}
//   - PUT    /admission/time-threshold        {"milliseconds": 100}
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/pkg/admission"
	"github.com/marmos91/sws/pkg/server"
)

// Operator is the subset of *server.Server the API drives.
type Operator interface {
	Start(rootDir string, port int) error
	Stop() error
	Status() server.Status

	WhitelistAddress(addr string) error
	BlacklistAddress(addr string) error
	UnwhitelistAddress(addr string) error
	UnblacklistAddress(addr string) error
	Whitelist() []string
	Blacklist() []string

	SetSampleSize(n int) error
	SetTimeThreshold(d time.Duration) error
}

var _ Operator = (*server.Server)(nil)

// Defaults are used by /server/start for fields the request omits.
type Defaults struct {
	Root string
	Port int
}

type handler struct {
	op       Operator
	defaults Defaults
}

// NewRouter returns the admin API handler. A zero Limits disables
// throttling.
func NewRouter(op Operator, defaults Defaults, limits Limits) http.Handler {
	h := &handler{op: op, defaults: defaults}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RateLimit(limits))

	r.Get("/status", h.status)

	r.Route("/server", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Post("/stop", h.stop)
	})

	r.Route("/admission", func(r chi.Router) {
		r.Get("/", h.lists)
		r.Put("/whitelist/{addr}", h.addressOp(op.WhitelistAddress))
		r.Delete("/whitelist/{addr}", h.addressOp(op.UnwhitelistAddress))
		r.Put("/blacklist/{addr}", h.addressOp(op.BlacklistAddress))
		r.Delete("/blacklist/{addr}", h.addressOp(op.UnblacklistAddress))
		r.Put("/sample-size", h.setSampleSize)
		r.Put("/time-threshold", h.setTimeThreshold)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type listsResponse struct {
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
}

type startRequest struct {
	Root string `json:"root"`
	Port *int   `json:"port"`
}

type sampleSizeRequest struct {
	Value int `json:"value"`
}

type thresholdRequest struct {
	Milliseconds int64 `json:"milliseconds"`
}

// maxThresholdMillis is the largest threshold representable as a Duration.
const maxThresholdMillis = math.MaxInt64 / int64(time.Millisecond)

var errThresholdTooLarge = errors.New("milliseconds exceeds the largest representable threshold")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Admin API: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.op.Status())
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	root := req.Root
	if root == "" {
		root = h.defaults.Root
	}
	port := h.defaults.Port
	if req.Port != nil {
		port = *req.Port
	}
	if root == "" {
		writeError(w, http.StatusBadRequest, errors.New("root is required"))
		return
	}
	if port < 0 || port > 65535 {
		writeError(w, http.StatusBadRequest, errors.New("port must be 0-65535"))
		return
	}

	if err := h.op.Start(root, port); err != nil {
		if errors.Is(err, server.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		logger.Warn("Admin API: start failed: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	logger.Info("Admin API: server started on %s (port %d)", root, port)
	writeJSON(w, http.StatusOK, h.op.Status())
}

func (h *handler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.op.Stop(); err != nil {
		if errors.Is(err, server.ErrNotRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	logger.Info("Admin API: server stopped")
	writeJSON(w, http.StatusOK, h.op.Status())
}

func (h *handler) lists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listsResponse{
		Whitelist: nonNil(h.op.Whitelist()),
		Blacklist: nonNil(h.op.Blacklist()),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (h *handler) addressOp(fn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr := chi.URLParam(r, "addr")
		if err := fn(addr); err != nil {
			if errors.Is(err, admission.ErrInvalidAddress) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		logger.Info("Admin API: %s %s", r.Method, r.URL.Path)
		h.lists(w, r)
	}
}

func (h *handler) setSampleSize(w http.ResponseWriter, r *http.Request) {
	var req sampleSizeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.op.SetSampleSize(req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger.Info("Admin API: sample size set to %d", req.Value)
	writeJSON(w, http.StatusOK, h.op.Status())
}

func (h *handler) setTimeThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Milliseconds > maxThresholdMillis {
		writeError(w, http.StatusBadRequest, errThresholdTooLarge)
		return
	}
	if err := h.op.SetTimeThreshold(time.Duration(req.Milliseconds) * time.Millisecond); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger.Info("Admin API: time threshold set to %dms", req.Milliseconds)
	writeJSON(w, http.StatusOK, h.op.Status())
}
