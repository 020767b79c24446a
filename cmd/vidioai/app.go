package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/audio"
	"github.com/chicogong/vidioai/pkg/auth"
	"github.com/chicogong/vidioai/pkg/cache"
	"github.com/chicogong/vidioai/pkg/config"
	"github.com/chicogong/vidioai/pkg/executor"
	"github.com/chicogong/vidioai/pkg/logging"
	"github.com/chicogong/vidioai/pkg/metrics"
	"github.com/chicogong/vidioai/pkg/ocr"
	"github.com/chicogong/vidioai/pkg/operators/builtin"
	"github.com/chicogong/vidioai/pkg/prober"
	"github.com/chicogong/vidioai/pkg/quiz"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/session"
	"github.com/chicogong/vidioai/pkg/speech"
	"github.com/chicogong/vidioai/pkg/storage"
	"github.com/chicogong/vidioai/pkg/transcode"
	"github.com/chicogong/vidioai/pkg/validator"
)

// app holds the components shared by every command
type app struct {
	cfg       *config.Config
	storage   *storage.Router
	validator *validator.Validator
	metrics   *metrics.Metrics
	library   *audio.Library
	ffmpeg    *transcode.FFmpeg
	exec      *executor.Executor
	logger    zerolog.Logger
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.FromContext(ctx)
	logger := logging.WithComponent("vidioai")

	v := validator.New()
	routerOpts := []storage.RouterOption{
		storage.WithHTTP(storage.NewHTTPStorage(storage.WithURLGuard(v.Guard))),
	}
	if cfg.Storage.S3.Enabled {
		s3, err := storage.NewS3StorageWithOptions(ctx, storage.S3Options{
			Region:    cfg.Storage.S3.Region,
			Endpoint:  cfg.Storage.S3.Endpoint,
			PathStyle: cfg.Storage.S3.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		routerOpts = append(routerOpts, storage.WithS3(s3))
	}
	st := storage.NewRouter(routerOpts...)

	library, err := newLibrary(cfg.Audio)
	if err != nil {
		return nil, err
	}

	results, err := newCache(ctx, cfg.Cache, st, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	ffmpeg := transcode.NewFFmpeg(
		transcode.WithBinary(cfg.FFmpeg.Binary),
		transcode.WithLogger(logging.WithComponent("ffmpeg")),
	)
	exec := executor.NewExecutor(builtin.NewRegistry(), ffmpeg,
		executor.WithStorage(st),
		executor.WithCache(results),
		executor.WithProber(prober.NewProber(prober.WithFFprobePath(cfg.FFmpeg.FFprobe))),
		executor.WithTracks(library),
		executor.WithMetrics(m),
		executor.WithArtifactRoot(cfg.Storage.ArtifactRoot),
		executor.WithCacheHitLatency(cfg.Executor.CacheHitLatency),
		executor.WithLogger(logging.WithComponent("executor")),
	)

	return &app{
		cfg:       cfg,
		storage:   st,
		validator: v,
		metrics:   m,
		library:   library,
		ffmpeg:    ffmpeg,
		exec:      exec,
		logger:    logger,
	}, nil
}

// newSession creates a session controller sharing the executor and its cache
func (a *app) newSession(id string, opts ...session.Option) *session.Controller {
	base := []session.Option{
		session.WithID(id),
		session.WithStorage(a.storage),
		session.WithExportRoot(a.cfg.Storage.ExportRoot),
		session.WithMetrics(a.metrics),
		session.WithLogger(logging.WithComponent("session")),
	}
	return session.NewController(a.exec, append(base, opts...)...)
}

// newOCR creates the OCR pipeline of session id
func (a *app) newOCR(id string) *ocr.Controller {
	tesseract := ocr.NewTesseract(
		ocr.WithTesseractBinary(a.cfg.OCR.Binary),
		ocr.WithTesseractLogger(logging.WithComponent("tesseract")),
	)
	logger := logging.WithComponent("ocr").With().Str("session", id).Logger()
	return ocr.NewController(a.exec, a.ffmpeg, tesseract,
		ocr.WithLanguage(a.cfg.OCR.Language),
		ocr.WithLogger(logger),
	)
}

func (a *app) newQuiz() *quiz.Generator {
	return quiz.NewGenerator(
		quiz.WithStorage(a.storage),
		quiz.WithLogger(logging.WithComponent("quiz")),
	)
}

// newSpeech probes the environment once. Absent engines report
// themselves unsupported instead of failing.
func (a *app) newSpeech() (speech.VoiceInput, speech.SpeechOutput) {
	sc := a.cfg.Speech
	caps := speech.Detect(sc.WhisperBinary, sc.EspeakBinary)
	a.logger.Info().
		Bool("recognition", caps.Recognition).
		Bool("synthesis", caps.Synthesis).
		Msg("speech capabilities")

	lang := strings.ToLower(sc.Language)
	base, _, _ := strings.Cut(lang, "-")
	input := speech.NewWhisper(sc.WhisperBinary, sc.WhisperModel, caps.Recognition,
		speech.WithWhisperLanguage(base),
		speech.WithWhisperLogger(logging.WithComponent("whisper")),
	)
	output := speech.NewEspeak(sc.EspeakBinary, caps.Synthesis,
		speech.WithVoice(lang),
		speech.WithEspeakLogger(logging.WithComponent("espeak")),
	)
	return input, output
}

func newLibrary(cfg config.AudioConfig) (*audio.Library, error) {
	tracks := make([]audio.Track, 0, len(cfg.Tracks))
	for _, t := range cfg.Tracks {
		tracks = append(tracks, audio.Track{
			ID:       t.ID,
			Name:     t.Name,
			URI:      t.URI,
			Duration: time.Duration(t.Seconds) * time.Second,
			Category: schemas.AudioCategory(t.Category),
		})
	}
	library, err := audio.NewLibrary(tracks...)
	if err != nil {
		return nil, fmt.Errorf("audio library: %w", err)
	}
	return library, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig, st storage.Storage, logger zerolog.Logger) (*cache.ResultCache, error) {
	var substrate cache.Substrate
	switch cfg.Substrate {
	case "", "memory":
		substrate = cache.NewMemorySubstrate()
	case "file":
		substrate = cache.NewFileSubstrate(cfg.Path)
	case "storage":
		if cfg.URI == "" {
			return nil, fmt.Errorf("cache: substrate storage needs cache.uri")
		}
		substrate = cache.NewStorageSubstrate(st, cfg.URI)
	default:
		return nil, fmt.Errorf("cache: unknown substrate %q", cfg.Substrate)
	}
	return cache.New(ctx, substrate, cache.WithLogger(logger.With().Str("component", "cache").Logger())), nil
}

// newAuth returns nil when no credentials are configured
func newAuth(cfg config.AuthConfig) (*auth.AuthMiddleware, error) {
	if cfg.JWTSecret == "" && len(cfg.APIKeys) == 0 {
		if cfg.Required {
			return nil, fmt.Errorf("auth: required but no jwt_secret or api_keys configured")
		}
		return nil, nil
	}

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	}

	keys := auth.NewAPIKeyManager()
	for _, k := range cfg.APIKeys {
		if _, err := keys.Register(k.Key, k.UserID, k.Name, nil); err != nil {
			return nil, fmt.Errorf("auth: api key %s: %w", k.Name, err)
		}
	}

	return auth.NewAuthMiddleware(jwtManager, keys, !cfg.Required).
		WithLogger(logging.WithComponent("auth")), nil
}
