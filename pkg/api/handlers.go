// Package api exposes sessions, OCR, quiz generation and the audio
// catalogue over HTTP
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/artifact"
	"github.com/chicogong/vidioai/pkg/audio"
	"github.com/chicogong/vidioai/pkg/auth"
	"github.com/chicogong/vidioai/pkg/metrics"
	"github.com/chicogong/vidioai/pkg/ocr"
	"github.com/chicogong/vidioai/pkg/quiz"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/session"
	"github.com/chicogong/vidioai/pkg/speech"
	"github.com/chicogong/vidioai/pkg/storage"
	"github.com/chicogong/vidioai/pkg/store"
	"github.com/chicogong/vidioai/pkg/validator"
)

// maxJSONBody bounds JSON request bodies
const maxJSONBody = 1 << 20

// SessionFactory builds the controller of a new session
type SessionFactory func(id string, opts ...session.Option) *session.Controller

// OCRFactory builds the OCR pipeline of a new session
type OCRFactory func(id string) *ocr.Controller

// liveSession holds the controllers of one session
type liveSession struct {
	ctrl *session.Controller
	ocr  *ocr.Controller
}

// Server holds the API server dependencies
type Server struct {
	store      store.Store
	newSession SessionFactory
	newOCR     OCRFactory
	quiz       *quiz.Generator
	library    *audio.Library
	voice      speech.VoiceInput
	speaker    speech.SpeechOutput
	storage    storage.Storage
	validator  *validator.Validator
	upload     artifact.UploadPolicy
	uploadRoot string
	exportRoot string
	metrics    *metrics.Metrics
	auth       *auth.AuthMiddleware
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession

	// Background operations outlive their request
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithOCR gives every session an OCR pipeline built by newOCR
func WithOCR(newOCR OCRFactory) Option {
	return func(s *Server) {
		s.newOCR = newOCR
	}
}

// WithQuiz enables POST /quiz
func WithQuiz(g *quiz.Generator) Option {
	return func(s *Server) {
		s.quiz = g
	}
}

// WithLibrary sets the audio catalogue served at /audio/tracks
func WithLibrary(l *audio.Library) Option {
	return func(s *Server) {
		s.library = l
	}
}

// WithVoice enables voice commands. Either adapter may be nil.
func WithVoice(input speech.VoiceInput, output speech.SpeechOutput) Option {
	return func(s *Server) {
		s.voice = input
		s.speaker = output
	}
}

// WithStorage sets the storage uploads and quiz exports are written through
func WithStorage(st storage.Storage) Option {
	return func(s *Server) {
		s.storage = st
	}
}

// WithValidator sets the source URI validator
func WithValidator(v *validator.Validator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

// WithUploads accepts source uploads matching policy, stored under root
func WithUploads(policy artifact.UploadPolicy, root string) Option {
	return func(s *Server) {
		s.upload = policy
		s.uploadRoot = root
	}
}

// WithExportRoot sets where quiz exports are written
func WithExportRoot(uri string) Option {
	return func(s *Server) {
		s.exportRoot = uri
	}
}

// WithMetrics records request metrics and serves /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAuth protects /api/v1 with m
func WithAuth(m *auth.AuthMiddleware) Option {
	return func(s *Server) {
		s.auth = m
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new API server
func NewServer(st store.Store, newSession SessionFactory, opts ...Option) *Server {
	s := &Server{
		store:      st,
		newSession: newSession,
		validator:  validator.New(),
		upload:     artifact.DefaultUploadPolicy(),
		logger:     zerolog.Nop(),
		sessions:   make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.storage == nil {
		s.storage = storage.NewRouter()
	}
	s.logger = s.logger.With().Str("component", "api").Logger()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error *schemas.ErrorInfo `json:"error"`
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()

	s.sendJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"time":     time.Now(),
		"sessions": active,
	})
}

// HandleAudioTracks handles GET /api/v1/audio/tracks
func (s *Server) HandleAudioTracks(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		s.sendJSON(w, http.StatusOK, []audio.Track{})
		return
	}
	s.sendJSON(w, http.StatusOK, s.library.Tracks())
}

// Wait blocks until background operations finish
func (s *Server) Wait() {
	s.wg.Wait()
}

// Close abandons background operations and releases resources
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Helper methods

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	info := schemas.ToErrorInfo(err)
	status := statusFor(err)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		info.Code = "NOT_FOUND"
	case status == http.StatusInternalServerError:
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.sendJSON(w, status, ErrorResponse{Error: info})
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, schemas.ErrInvalidInput), errors.Is(err, store.ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, schemas.ErrBusy), errors.Is(err, schemas.ErrInvalidated):
		return http.StatusConflict
	case errors.Is(err, schemas.ErrCapabilityAbsent):
		return http.StatusNotImplemented
	case errors.Is(err, schemas.ErrCollaborator):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return schemas.InvalidInputf("invalid request body: %v", err)
	}
	return nil
}

// owner returns the authenticated user, empty for anonymous requests
func owner(r *http.Request) string {
	id, _ := auth.GetUserID(r)
	return id
}
