// Package quiz generates review questions for a video and exports them as
// JSON.
package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/storage"
)

// Difficulty of the generated questions
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Format of the generated questions
type Format string

const (
	FormatMultipleChoice Format = "multiple-choice"
	FormatTrueFalse      Format = "true-false"
)

// DefaultQuestions is the question count when none is set
const DefaultQuestions = 5

// exportSteps is the number of progress steps of an export
const exportSteps = 5

// Settings configure a generation
type Settings struct {
	NumberOfQuestions int        `json:"number_of_questions" yaml:"number_of_questions"`
	Difficulty        Difficulty `json:"difficulty" yaml:"difficulty"`
	Format            Format     `json:"format" yaml:"format"`
}

// DefaultSettings returns five medium multiple-choice questions
func DefaultSettings() Settings {
	return Settings{
		NumberOfQuestions: DefaultQuestions,
		Difficulty:        DifficultyMedium,
		Format:            FormatMultipleChoice,
	}
}

// Normalize fills unset fields with defaults and validates the result
func (s Settings) Normalize() (Settings, error) {
	if s.NumberOfQuestions == 0 {
		s.NumberOfQuestions = DefaultQuestions
	}
	if s.Difficulty == "" {
		s.Difficulty = DifficultyMedium
	}
	if s.Format == "" {
		s.Format = FormatMultipleChoice
	}

	if s.NumberOfQuestions < 1 {
		return s, schemas.InvalidInputf("number of questions must be at least 1, got %d", s.NumberOfQuestions)
	}
	switch s.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return s, schemas.InvalidInputf("unknown difficulty %q", s.Difficulty)
	}
	switch s.Format {
	case FormatMultipleChoice, FormatTrueFalse:
	default:
		return s, schemas.InvalidInputf("unknown format %q", s.Format)
	}
	return s, nil
}

// Question is one quiz question
type Question struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_option_index"`
	TimeInVideo  int      `json:"time_in_video,omitempty"`
}

// Quiz is a generated question set
type Quiz struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Settings  Settings   `json:"settings"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// bank is the fixed question set generations draw from
var bank = []Question{
	{
		ID:           "1",
		Question:     "Qual é o principal benefício mencionado no vídeo?",
		Options:      []string{"Economia de tempo", "Redução de custos", "Melhor qualidade", "Facilidade de uso"},
		CorrectIndex: 0,
		TimeInVideo:  15,
	},
	{
		ID:           "2",
		Question:     "Qual ferramenta é utilizada para edição de vídeo no aplicativo?",
		Options:      []string{"FFmpeg", "Adobe Premiere", "iMovie", "Final Cut Pro"},
		CorrectIndex: 0,
		TimeInVideo:  45,
	},
	{
		ID:           "3",
		Question:     "O que o modo viral faz com os vídeos?",
		Options:      []string{"Adiciona música", "Aumenta a saturação e velocidade", "Adiciona legendas", "Corta trechos silenciosos"},
		CorrectIndex: 1,
		TimeInVideo:  78,
	},
	{
		ID:           "4",
		Question:     "Qual recurso permite editar texto em vídeos?",
		Options:      []string{"Text Editor", "OCR", "Subtitle Maker", "Text Overlay"},
		CorrectIndex: 1,
		TimeInVideo:  120,
	},
	{
		ID:           "5",
		Question:     "Qual comando de voz é usado para adicionar música lo-fi?",
		Options:      []string{"Adicione música lo-fi", "Música lo-fi", "Coloque lo-fi", "Toque lo-fi"},
		CorrectIndex: 0,
		TimeInVideo:  150,
	},
}

// stage is one generation checkpoint
type stage struct {
	progress float64
	message  string
}

var stages = []stage{
	{0.2, "Extracting audio..."},
	{0.4, "Transcribing content..."},
	{0.6, "Analysing content..."},
	{0.8, "Generating questions..."},
}

// Generator produces quizzes
type Generator struct {
	store     storage.Storage
	stepDelay time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Generator
type Option func(*Generator)

// WithStorage sets the storage exports are written through
func WithStorage(s storage.Storage) Option {
	return func(g *Generator) {
		g.store = s
	}
}

// WithStepDelay paces generation and export stages
func WithStepDelay(d time.Duration) Option {
	return func(g *Generator) {
		g.stepDelay = d
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// NewGenerator creates a generator
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.store == nil {
		g.store = storage.NewRouter()
	}
	g.logger = g.logger.With().Str("component", "quiz").Logger()
	return g
}

// Generate builds a quiz for source. The terminal event carries the quiz as
// a JSON data artifact; see Collect.
func (g *Generator) Generate(ctx context.Context, source schemas.Artifact, settings Settings) iter.Seq[schemas.Event] {
	return func(yield func(schemas.Event) bool) {
		if source.IsZero() {
			yield(failedEvent(schemas.ErrNoSource))
			return
		}
		settings, err := settings.Normalize()
		if err != nil {
			yield(failedEvent(err))
			return
		}

		for _, st := range stages {
			if err := g.pause(ctx); err != nil {
				yield(failedEvent(err))
				return
			}
			if !yield(schemas.Event{Phase: schemas.PhaseTranscoding, Progress: st.progress, Message: st.message}) {
				return
			}
		}

		q := &Quiz{
			ID:        uuid.NewString(),
			Source:    source.URI,
			Settings:  settings,
			Questions: questions(settings),
			CreatedAt: g.now(),
		}
		data, err := json.Marshal(q)
		if err != nil {
			yield(failedEvent(err))
			return
		}
		g.logger.Info().Str("quiz", q.ID).Int("questions", len(q.Questions)).Msg("quiz generated")

		yield(schemas.Event{
			Phase:    schemas.PhaseDone,
			Progress: 1,
			Message:  "Quiz generated!",
			Artifact: &schemas.Artifact{
				Identity:  schemas.ShortHash(string(data)),
				Kind:      schemas.ArtifactData,
				MimeType:  "application/json",
				Text:      string(data),
				CreatedAt: q.CreatedAt,
			},
		})
	}
}

// Collect drains a generation and decodes its quiz
func Collect(seq iter.Seq[schemas.Event]) (*Quiz, error) {
	var last schemas.Event
	for ev := range seq {
		last = ev
	}
	if last.Err != nil {
		return nil, last.Err
	}
	if last.Artifact == nil {
		return nil, errors.New("quiz generation ended without a result")
	}
	var q Quiz
	if err := json.Unmarshal([]byte(last.Artifact.Text), &q); err != nil {
		return nil, fmt.Errorf("failed to decode quiz: %w", err)
	}
	return &q, nil
}

// Export writes q as JSON to uri
func (g *Generator) Export(ctx context.Context, q *Quiz, uri string) iter.Seq[schemas.Event] {
	return func(yield func(schemas.Event) bool) {
		if q == nil || len(q.Questions) == 0 {
			yield(failedEvent(schemas.InvalidInputf("no quiz to export")))
			return
		}
		data, err := json.MarshalIndent(q, "", "  ")
		if err != nil {
			yield(failedEvent(err))
			return
		}

		if !yield(schemas.Event{Phase: schemas.PhaseExporting, Message: "Preparing quiz export..."}) {
			return
		}
		for i := 1; i < exportSteps; i++ {
			if err := g.pause(ctx); err != nil {
				yield(failedEvent(err))
				return
			}
			ev := schemas.Event{
				Phase:    schemas.PhaseExporting,
				Progress: float64(i) / exportSteps,
				Message:  fmt.Sprintf("Exporting quiz: %d%%", i*100/exportSteps),
			}
			if !yield(ev) {
				return
			}
		}

		if err := g.store.Put(ctx, uri, bytes.NewReader(data)); err != nil {
			yield(failedEvent(schemas.NewCollaboratorError("storage", "export", err)))
			return
		}
		g.logger.Info().Str("quiz", q.ID).Str("uri", uri).Msg("quiz exported")

		yield(schemas.Event{
			Phase:    schemas.PhaseDone,
			Progress: 1,
			Message:  "Quiz exported!",
			Artifact: &schemas.Artifact{
				URI:       uri,
				Identity:  schemas.ShortHash(string(data)),
				Kind:      schemas.ArtifactData,
				MimeType:  "application/json",
				Size:      int64(len(data)),
				CreatedAt: g.now(),
			},
		})
	}
}

// questions slices the bank to the requested count, in the requested format
func questions(s Settings) []Question {
	n := min(s.NumberOfQuestions, len(bank))
	out := make([]Question, 0, n)
	for i, q := range bank[:n] {
		q.Options = append([]string(nil), q.Options...)
		if s.Format == FormatTrueFalse {
			q = trueFalse(q, i)
		}
		out = append(out, q)
	}
	return out
}

// trueFalse turns q into a statement that pairs the question with one of
// its options. Even positions state the correct option, odd positions the
// first wrong one.
func trueFalse(q Question, position int) Question {
	stated := q.CorrectIndex
	if position%2 == 1 {
		stated = (q.CorrectIndex + 1) % len(q.Options)
	}
	correct := 0
	if stated != q.CorrectIndex {
		correct = 1
	}
	return Question{
		ID:           q.ID,
		Question:     fmt.Sprintf("%s Resposta: %s", q.Question, q.Options[stated]),
		Options:      []string{"Verdadeiro", "Falso"},
		CorrectIndex: correct,
		TimeInVideo:  q.TimeInVideo,
	}
}

func (g *Generator) pause(ctx context.Context) error {
	if g.stepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.stepDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failedEvent(err error) schemas.Event {
	return schemas.Event{Phase: schemas.PhaseFailed, Message: "Error: " + err.Error(), Err: err}
}
