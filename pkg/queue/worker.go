package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/session"
	"github.com/chicogong/vidioai/pkg/validator"
)

// ErrMalformed marks a message that can never be processed
var ErrMalformed = errors.New("malformed message")

// CommandMessage asks for one command to run against a source video
type CommandMessage struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Command string `json:"command"`
}

// ResultMessage is published once per processed command
type ResultMessage struct {
	ID       string             `json:"id"`
	Intent   schemas.Intent     `json:"intent"`
	Handled  bool               `json:"handled"`
	Artifact *schemas.Artifact  `json:"artifact,omitempty"`
	Error    *schemas.ErrorInfo `json:"error,omitempty"`
}

// Session is the part of a session controller the worker drives
type Session interface {
	SetSource(source schemas.Artifact) error
	ProcessRaw(ctx context.Context, text string) (session.Result, error)
	Clear()
}

// Publisher sends a message body to a queue
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Worker turns command messages into session operations
type Worker struct {
	newSession func(id string) Session
	publisher  Publisher
	results    string
	validator  *validator.Validator
	timeout    time.Duration
	logger     zerolog.Logger
}

// Option configures a Worker
type Option func(*Worker)

// WithTimeout bounds each command, zero for no bound
func WithTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.timeout = d
	}
}

// WithValidator sets the source URI validator
func WithValidator(v *validator.Validator) Option {
	return func(w *Worker) {
		w.validator = v
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a worker publishing results to the results queue.
// Every command runs in a fresh session from newSession.
func NewWorker(newSession func(id string) Session, publisher Publisher, results string, opts ...Option) *Worker {
	w := &Worker{
		newSession: newSession,
		publisher:  publisher,
		results:    results,
		validator:  validator.New(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("component", "queue").Logger()
	return w
}

// Run handles deliveries until ctx is done or the channel closes
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info().Str("results", w.results).Msg("worker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Info().Msg("delivery channel closed")
				return nil
			}
			if err := w.deliver(ctx, d); err != nil {
				return err
			}
		}
	}
}

// deliver handles one delivery and settles it. Malformed messages are
// dropped; a failed publish is requeued.
func (w *Worker) deliver(ctx context.Context, d amqp.Delivery) error {
	log := w.logger.With().Uint64("tag", d.DeliveryTag).Logger()

	_, err := w.Handle(ctx, d.Body)
	switch {
	case err == nil:
		return d.Ack(false)
	case errors.Is(err, ErrMalformed):
		log.Warn().Err(err).Msg("dropping message")
		return d.Nack(false, false)
	case ctx.Err() != nil:
		return d.Nack(false, true)
	default:
		log.Error().Err(err).Msg("requeueing message")
		return d.Nack(false, true)
	}
}

// Handle runs the command in body and publishes its result. Command
// failures are reported in the result, not returned.
func (w *Worker) Handle(ctx context.Context, body []byte) (ResultMessage, error) {
	msg, err := decode(body)
	if err != nil {
		return ResultMessage{}, err
	}
	log := w.logger.With().Str("id", msg.ID).Logger()

	result := w.run(ctx, msg)
	if result.Error != nil {
		log.Warn().Str("code", result.Error.Code).Str("error", result.Error.Message).Msg("command failed")
	} else {
		log.Info().Str("intent", result.Intent.String()).Bool("handled", result.Handled).Msg("command processed")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return result, fmt.Errorf("failed to encode result: %w", err)
	}
	if err := w.publisher.Publish(ctx, w.results, payload); err != nil {
		return result, err
	}
	return result, nil
}

func (w *Worker) run(ctx context.Context, msg CommandMessage) ResultMessage {
	result := ResultMessage{ID: msg.ID}
	if err := w.validator.ValidateSource(msg.Source); err != nil {
		result.Error = schemas.ToErrorInfo(err)
		return result
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	sess := w.newSession(msg.ID)
	defer sess.Clear()

	if err := sess.SetSource(schemas.Artifact{URI: msg.Source, Kind: schemas.ArtifactVideo}); err != nil {
		result.Error = schemas.ToErrorInfo(err)
		return result
	}

	res, err := sess.ProcessRaw(ctx, msg.Command)
	result.Intent = res.Intent
	result.Handled = res.Handled
	if err != nil {
		result.Error = schemas.ToErrorInfo(err)
		return result
	}
	if res.Handled {
		a := res.Artifact
		result.Artifact = &a
	}
	return result
}

func decode(body []byte) (CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(msg.Command) == "" {
		return msg, fmt.Errorf("%w: command is empty", ErrMalformed)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg, nil
}
