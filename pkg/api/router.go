package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chicogong/vidioai/pkg/metrics"
)

// Routes returns the HTTP handler of the server
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware)
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
	}

	r.Get("/health", s.HandleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler(s.updateGauges))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Handler)
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.HandleCreateSession)
			r.Get("/", s.HandleListSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetSession)
				r.Delete("/", s.HandleDeleteSession)
				r.Put("/source", s.HandleSetSource)
				r.Post("/commands", s.HandleCommand)
				r.Post("/voice", s.HandleVoice)
				r.Post("/cut", s.HandleCut)
				r.Post("/audio", s.HandleAddAudio)
				r.Post("/viral", s.HandleViral)
				r.Post("/subtitles", s.HandleSubtitles)
				r.Post("/remove-audio", s.HandleRemoveAudio)
				r.Post("/silence", s.HandleTrimSilence)
				r.Post("/export", s.HandleExport)

				r.Route("/ocr", func(r chi.Router) {
					r.Get("/", s.HandleOCRState)
					r.Post("/frames", s.HandleExtractFrame)
					r.Post("/text", s.HandleRecognizeText)
					r.Post("/replacements", s.HandleAddReplacement)
					r.Delete("/replacements", s.HandleClearReplacements)
					r.Post("/apply", s.HandleApplyReplacements)
				})
			})
		})

		r.Post("/quiz", s.HandleQuiz)
		r.Get("/audio/tracks", s.HandleAudioTracks)
	})

	return r
}

func (s *Server) updateGauges() {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(n)
}
