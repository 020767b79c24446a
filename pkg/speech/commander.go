package speech

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/session"
)

// CommandRunner executes free-text commands
type CommandRunner interface {
	ProcessRaw(ctx context.Context, text string) (session.Result, error)
}

// Reply is the outcome of one voice command
type Reply struct {
	Transcript Transcript     `json:"transcript"`
	Result     session.Result `json:"result"`
	Message    string         `json:"message"`
}

// Commander turns spoken commands into pipeline operations and speaks back
// the outcome when synthesis is available
type Commander struct {
	input  VoiceInput
	output SpeechOutput
	runner CommandRunner
	logger zerolog.Logger
}

// NewCommander creates a voice commander. output may be nil.
func NewCommander(input VoiceInput, output SpeechOutput, runner CommandRunner, logger zerolog.Logger) *Commander {
	return &Commander{
		input:  input,
		output: output,
		runner: runner,
		logger: logger.With().Str("component", "speech").Logger(),
	}
}

// Capabilities reports what the commander can do
func (c *Commander) Capabilities() CapabilitySet {
	caps := CapabilitySet{}
	if c.input != nil {
		caps.Recognition = c.input.Supported()
	}
	if c.output != nil {
		caps.Synthesis = c.output.Supported()
	}
	return caps
}

// Handle transcribes the recording at audioPath and runs it as a command.
// An unrecognized command is not an error.
func (c *Commander) Handle(ctx context.Context, audioPath string) (Reply, error) {
	if c.input == nil || !c.input.Supported() {
		return Reply{}, absent("speech recognition")
	}

	tr, err := c.input.Transcribe(ctx, audioPath)
	if err != nil {
		return Reply{}, err
	}
	c.logger.Info().Str("transcript", tr.Text).Float64("confidence", tr.Confidence).Msg("voice command")

	return c.Run(ctx, tr)
}

// Run executes an already recognized transcript
func (c *Commander) Run(ctx context.Context, tr Transcript) (Reply, error) {
	reply := Reply{Transcript: tr}
	if strings.TrimSpace(tr.Text) == "" {
		reply.Message = "Não entendi o comando"
		c.say(ctx, reply.Message)
		return reply, nil
	}

	res, err := c.runner.ProcessRaw(ctx, tr.Text)
	reply.Result = res
	switch {
	case err != nil:
		reply.Message = "Erro: " + err.Error()
	case !res.Handled:
		reply.Message = "Comando não reconhecido"
	default:
		reply.Message = "Comando executado: " + res.Intent.String()
	}
	c.say(ctx, reply.Message)
	return reply, err
}

func (c *Commander) say(ctx context.Context, text string) {
	if c.output == nil || !c.output.Supported() {
		return
	}
	if err := c.output.Speak(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn().Err(err).Msg("spoken feedback failed")
	}
}
