// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/pathakanu/ashx/internal/config"
	"github.com/pathakanu/ashx/internal/database"
	"github.com/pathakanu/ashx/internal/launcher"
	"github.com/pathakanu/ashx/internal/logging"
	"github.com/pathakanu/ashx/internal/model"
)

// HealthChecker reports database reachability.
type HealthChecker interface {
	Check(ctx context.Context) database.Health
}

// Asker answers chat and reminder messages.
type Asker interface {
	Ask(ctx context.Context, message string, history []model.ChatMessage) string
}

// Opener launches desktop applications.
type Opener interface {
	Open(command string) launcher.Result
}

type askRequest struct {
	Message string              `json:"message"`
	History []model.ChatMessage `json:"history"`
}

type askResponse struct {
	Reply string `json:"reply"`
}

type commandRequest struct {
	Command string `json:"command"`
}

// Server is the HTTP server for the assistant API.
type Server struct {
	health   HealthChecker
	asker    Asker
	opener   Opener
	webhook  http.Handler
	log      zerolog.Logger
	router   *mux.Router
	server   *http.Server
	frontend string
}

// Option configures a Server.
type Option func(*Server)

// WithWebhook mounts the Twilio webhook at /twilio/webhook.
func WithWebhook(h http.Handler) Option {
	return func(s *Server) { s.webhook = h }
}

// New creates the server and registers its routes.
func New(cfg *config.Config, health HealthChecker, asker Asker, opener Opener, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		health:   health,
		asker:    asker,
		opener:   opener,
		log:      log,
		router:   mux.NewRouter(),
		frontend: cfg.FrontendURL,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)
	s.router.HandleFunc("/command", s.handleCommand).Methods(http.MethodPost)
	if s.webhook != nil {
		s.router.Handle("/twilio/webhook", s.webhook).Methods(http.MethodPost)
	}
}

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Handler returns the router wrapped in recovery, request logging, request
// ids and CORS.
func (s *Server) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(logging.Printf{L: s.log, Level: zerolog.ErrorLevel}),
		handlers.PrintRecoveryStack(true),
	)
	logged := handlers.CustomLoggingHandler(io.Discard, recovery(s.router), s.logRequest)
	return s.cors()(requestID(logged))
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors() func(http.Handler) http.Handler {
	opts := []handlers.CORSOption{
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	}
	if s.frontend != "" {
		opts = append(opts, handlers.AllowedOrigins([]string{s.frontend}), handlers.AllowCredentials())
	} else {
		opts = append(opts, handlers.AllowedOrigins([]string{"*"}))
	}
	return handlers.CORS(opts...)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Info().
		Str("request_id", p.Request.Header.Get(RequestIDHeader)).
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("size", p.Size).
		Dur("duration", logging.Since(p.TimeStamp)).
		Msg("http request")
}

// Start begins serving HTTP requests. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Check(r.Context()))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Reply: s.asker.Ask(r.Context(), req.Message, req.History)})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, s.opener.Open(req.Command))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
