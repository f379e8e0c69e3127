package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxWebhookBody bounds a delivered integration response.
const maxWebhookBody = 1 << 20

// Engine is the call-control surface the server drives.
type Engine interface {
	Start(ctx context.Context, callID string, vars domain.Variables) (*domain.TurnResult, error)
	Turn(ctx context.Context, callID, utterance string) (*domain.TurnResult, error)
	Deliver(ctx context.Context, callID string, body []byte) error
	Hangup(ctx context.Context, callID, reason string) error
	Session(ctx context.Context, callID string) (*domain.CallSession, error)
	Active() []string
}

// Server serves the operational and call-control endpoints.
type Server struct {
	Engine   Engine
	Streams  *StreamManager
	ready    func(context.Context) error
	gatherer prometheus.Gatherer
	newID    func() string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithReadiness sets the /readyz probe. A nil error means ready.
func WithReadiness(fn func(context.Context) error) Option {
	return func(s *Server) {
		s.ready = fn
	}
}

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a StreamManager whose Hooks are installed on the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithIDGenerator sets how call ids are minted when a client omits one.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) {
		s.newID = fn
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		ready:  func(context.Context) error { return nil },
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	r.Get("/readyz", s.GetReady)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/calls", func(r chi.Router) {
		r.Get("/", s.ListCalls)
		r.Post("/", s.StartCall)
		r.Route("/{callID}", func(r chi.Router) {
			r.Get("/", s.GetCall)
			r.Delete("/", s.Hangup)
			r.Post("/turns", s.Turn)
			r.Post("/webhook", s.DeliverWebhook)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartCallRequest opens a call. CallID is generated when empty.
type StartCallRequest struct {
	CallID    string           `json:"call_id,omitempty"`
	Variables domain.Variables `json:"variables,omitempty"`
}

// StartCallResponse carries the greeting, nil when an active call was resumed.
type StartCallResponse struct {
	CallID  string             `json:"call_id"`
	Opening *domain.TurnResult `json:"opening,omitempty"`
}

// TurnRequest carries one final caller utterance.
type TurnRequest struct {
	Utterance string `json:"utterance"`
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetReady handles GET /readyz.
func (s *Server) GetReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListCalls handles GET /calls.
func (s *Server) ListCalls(w http.ResponseWriter, r *http.Request) {
	active := s.Engine.Active()
	if active == nil {
		active = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": active})
}

// StartCall handles POST /calls.
func (s *Server) StartCall(w http.ResponseWriter, r *http.Request) {
	var body StartCallRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("StartCall: invalid request body", "err", err)
			return
		}
	}
	if body.CallID == "" {
		if s.newID == nil {
			http.Error(w, "call_id is required", http.StatusBadRequest)
			return
		}
		body.CallID = s.newID()
	}

	opening, err := s.Engine.Start(r.Context(), body.CallID, body.Variables)
	if err != nil {
		s.fail(w, "StartCall", body.CallID, err)
		return
	}
	writeJSON(w, http.StatusCreated, StartCallResponse{CallID: body.CallID, Opening: opening})
}

// GetCall handles GET /calls/{callID}.
func (s *Server) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	sess, err := s.Engine.Session(r.Context(), callID)
	if err != nil {
		s.fail(w, "GetCall", callID, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Hangup handles DELETE /calls/{callID}.
func (s *Server) Hangup(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "hangup"
	}
	if err := s.Engine.Hangup(r.Context(), callID, reason); err != nil {
		s.fail(w, "Hangup", callID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Turn handles POST /calls/{callID}/turns.
func (s *Server) Turn(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	var body TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Turn: invalid request body", "call_id", callID, "err", err)
		return
	}
	utterance, err := runner.SanitizeInput(strings.TrimSpace(body.Utterance))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid utterance: %v", err), http.StatusBadRequest)
		s.logger.Warn("Turn: utterance rejected", "call_id", callID, "err", err, "size", len(body.Utterance))
		return
	}
	if utterance == "" {
		http.Error(w, "utterance is required", http.StatusBadRequest)
		return
	}

	res, err := s.Engine.Turn(r.Context(), callID, utterance)
	if err != nil {
		s.fail(w, "Turn", callID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeliverWebhook handles POST /calls/{callID}/webhook. The raw body is
// queued and unwrapped during the call's next turn.
func (s *Server) DeliverWebhook(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxWebhookBody {
		http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err := s.Engine.Deliver(r.Context(), callID, body); err != nil {
		s.fail(w, "DeliverWebhook", callID, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, op, callID string, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, "call not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrCallEnded):
		http.Error(w, "call ended", http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, "request cancelled", http.StatusGatewayTimeout)
	default:
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
		s.logger.Error(op+" failed", "call_id", callID, "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
