package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"reticle/internal/config"
	"reticle/internal/detection"
	"reticle/internal/logging"
	"reticle/internal/search"
	"reticle/internal/services"
	"reticle/internal/workflow"
)

const (
	maxFrameBytes       = 8 << 20
	defaultWatchTimeout = 25 * time.Second
	defaultLogLimit     = 200
)

// HeaderFrameSeq and HeaderFrameRotation carry frame metadata on POST /api/frames.
const (
	HeaderFrameSeq      = "X-Frame-Seq"
	HeaderFrameRotation = "X-Frame-Rotation"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// StateResponse is the body of GET /api/state and /api/state/watch.
type StateResponse struct {
	workflow.Snapshot
	Changed bool `json:"changed"`
}

// ResultResponse is the body of GET /api/result.
type ResultResponse struct {
	Kind       workflow.EntityKind `json:"kind"`
	Item       detection.Item      `json:"item"`
	TrackingID *int64              `json:"tracking_id,omitempty"`
	FrameSeq   uint64              `json:"frame_seq,omitempty"`
	Products   []search.Product    `json:"products"`
	Error      string              `json:"error,omitempty"`
	Generation uint64              `json:"generation,omitempty"`
	At         time.Time           `json:"at"`
}

// FrameResponse is the body of POST /api/frames.
type FrameResponse struct {
	Seq      uint64 `json:"seq"`
	Accepted bool   `json:"accepted"`
}

// LogStreamResponse is the body of GET /api/logs.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      defaultWatchTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler returns the API router. Used by tests and embedders that run their
// own listener.
func (d *Daemon) Handler() http.Handler {
	srv := &apiServer{
		logger: logging.NewComponentLogger(d.base, "api-server"),
		daemon: d,
	}
	return srv.routes(d.cfg.Paths.APIToken)
}

func (s *apiServer) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.correlate)
	r.Use(authMiddleware(token))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/state/watch", s.handleWatch)
		r.Get("/state/history", s.handleHistory)
		r.Get("/result", s.handleResult)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Post("/frames", s.handleFrame)
		r.Post("/search", s.handleSearch)
		r.Post("/dismiss", s.handleDismiss)
		r.Post("/resume", s.handleResume)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// correlate tags each request with a correlation id, echoed in the
// response, and logs it on completion.
func (s *apiServer) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := services.WithRequestID(r.Context(), id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StateResponse{Snapshot: s.daemon.Machine().Snapshot()})
}

// handleWatch long-polls until the state version exceeds ?since= or the
// timeout passes, in which case the unchanged snapshot is returned.
func (s *apiServer) handleWatch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, err := parseUintParam(query.Get("since"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	timeout := defaultWatchTimeout
	if raw := strings.TrimSpace(query.Get("timeout")); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		timeout = min(time.Duration(secs)*time.Second, defaultWatchTimeout)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	snap, err := s.daemon.Machine().Wait(ctx, since)
	if err != nil && r.Context().Err() != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{Snapshot: snap, Changed: err == nil})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"transitions": s.daemon.Machine().History()})
}

func (s *apiServer) handleResult(w http.ResponseWriter, r *http.Request) {
	evt, ok := s.daemon.Machine().LastEntity()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no confirmed entity")
		return
	}
	s.writeJSON(w, http.StatusOK, NewResultResponse(evt))
}

// NewResultResponse converts a published entity to its API form.
func NewResultResponse(evt workflow.Entity) ResultResponse {
	resp := ResultResponse{
		Kind:       evt.Kind,
		Item:       evt.Candidate.Item,
		Products:   evt.Products,
		Generation: evt.Generation,
		At:         evt.At,
	}
	if id := evt.Candidate.Identity(); id.Valid {
		resp.TrackingID = &id.ID
	}
	if evt.Candidate.Frame != nil {
		resp.FrameSeq = evt.Candidate.Frame.Seq
	}
	if evt.Err != nil {
		resp.Error = evt.Err.Error()
	}
	if resp.Products == nil {
		resp.Products = []search.Product{}
	}
	return resp
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, LogStreamResponse{Events: []logging.LogEvent{}})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := parseBool(query.Get("follow"))
	tail := parseBool(query.Get("tail"))
	component := strings.TrimSpace(query.Get("component"))
	sessionID := strings.TrimSpace(query.Get("session"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), defaultWatchTimeout)
		defer cancel()
		var err error
		events, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if sessionID != "" && evt.SessionID != sessionID {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, LogStreamResponse{Events: filtered, Next: next})
}

// handleFrame accepts one encoded camera frame. The image header supplies
// the dimensions; the pixels are passed through to the detector untouched.
func (s *apiServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}
	imgCfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unsupported image: "+err.Error())
		return
	}

	seq, err := parseUintParam(r.Header.Get(HeaderFrameSeq))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid "+HeaderFrameSeq)
		return
	}
	seq, err = s.daemon.FrameSeq(seq)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	rotation := 0
	if raw := strings.TrimSpace(r.Header.Get(HeaderFrameRotation)); raw != "" {
		rotation, err = strconv.Atoi(raw)
		if err != nil || !detection.Rotation(rotation).Valid() {
			s.writeError(w, http.StatusBadRequest, "invalid "+HeaderFrameRotation)
			return
		}
	}

	frame := &detection.Frame{
		Seq:        seq,
		Width:      imgCfg.Width,
		Height:     imgCfg.Height,
		Rotation:   detection.Rotation(rotation),
		Format:     format,
		Data:       body,
		CapturedAt: time.Now(),
	}
	accepted, err := s.daemon.SubmitFrame(frame)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, FrameResponse{Seq: seq, Accepted: accepted})
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, s.daemon.RequestSearch)
}

func (s *apiServer) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, s.daemon.Dismiss)
}

func (s *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, s.daemon.Resume)
}

func (s *apiServer) runOperation(w http.ResponseWriter, r *http.Request, op func(context.Context) error) {
	if err := op(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{Snapshot: s.daemon.Machine().Snapshot(), Changed: true})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidOperation):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func parseUintParam(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func parseBool(raw string) bool {
	return raw == "1" || strings.EqualFold(raw, "true")
}
