package builtin

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
)

type fakeTracks map[schemas.AudioCategory]string

func (f fakeTracks) ForCategory(c schemas.AudioCategory) (string, bool) {
	uri, ok := f[c]
	return uri, ok
}

func compile(t *testing.T, ctx *operators.CompileContext, intent schemas.Intent) *operators.Spec {
	t.Helper()
	spec, err := NewRegistry().Compile(ctx, intent)
	require.NoError(t, err)
	return spec
}

func TestRegistry_CoversEveryKind(t *testing.T) {
	reg := NewRegistry()
	kinds := []schemas.IntentKind{
		schemas.KindProcessVideo,
		schemas.KindCutVideo,
		schemas.KindAddAudio,
		schemas.KindRemoveAudio,
		schemas.KindViralMode,
		schemas.KindAddSubtitles,
		schemas.KindCustom,
	}
	for _, kind := range kinds {
		op, err := reg.Get(kind)
		require.NoError(t, err, kind)
		assert.Equal(t, kind, op.Describe().Kind)
	}

	_, err := reg.Compile(nil, schemas.Unknown())
	assert.True(t, errors.Is(err, schemas.ErrInvalidInput))
}

func TestCutOperator(t *testing.T) {
	op := &CutOperator{}

	tests := []struct {
		name    string
		intent  schemas.Intent
		wantErr bool
	}{
		{"valid window", schemas.CutVideo(65, 130), false},
		{"zero start", schemas.CutVideo(0, 1), false},
		{"end before start", schemas.CutVideo(130, 65), true},
		{"empty window", schemas.CutVideo(10, 10), true},
		{"negative start", schemas.CutVideo(-1, 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := op.Validate(tt.intent)
			if tt.wantErr {
				assert.True(t, errors.Is(err, schemas.ErrInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}

	spec := compile(t, &operators.CompileContext{}, schemas.CutVideo(65, 130))
	assert.Equal(t, []string{"-i", "input.mp4", "-ss", "65", "-to", "130", "output.mp4"}, spec.Args)
	assert.Equal(t, 65*time.Second, spec.Duration)

	clipped := compile(t, &operators.CompileContext{Duration: 100 * time.Second}, schemas.CutVideo(65, 130))
	assert.Equal(t, 35*time.Second, clipped.Duration)
}

func TestAudioOperator(t *testing.T) {
	tracks := fakeTracks{
		schemas.AudioLofi:  "file:///tracks/lofi.mp3",
		schemas.AudioOther: "file:///tracks/first.mp3",
	}

	spec := compile(t, &operators.CompileContext{Tracks: tracks}, schemas.AddAudio(schemas.AudioLofi))
	assert.Equal(t, []string{
		"-i", "input.mp4",
		"-i", "track.mp3",
		"-filter_complex", "[0:a]volume=1[a1];[1:a]volume=0.5[a2];[a1][a2]amix=inputs=2:duration=longest",
		"output.mp4",
	}, spec.Args)
	require.Len(t, spec.Assets, 1)
	assert.Equal(t, "file:///tracks/lofi.mp3", spec.Assets[0].URI)

	other := compile(t, &operators.CompileContext{Tracks: tracks}, schemas.AddAudio(""))
	assert.Equal(t, "file:///tracks/first.mp3", other.Assets[0].URI)

	_, err := NewRegistry().Compile(&operators.CompileContext{Tracks: tracks}, schemas.AddAudio(schemas.AudioTrap))
	assert.True(t, errors.Is(err, schemas.ErrInvalidInput))

	_, err = NewRegistry().Compile(&operators.CompileContext{}, schemas.AddAudio(schemas.AudioLofi))
	assert.True(t, errors.Is(err, schemas.ErrInvalidInput))

	assert.Error(t, (&AudioOperator{}).Validate(schemas.AddAudio("polka")))

	reg := NewRegistry()
	assert.NoError(t, reg.Validate(&operators.CompileContext{Tracks: tracks}, schemas.AddAudio(schemas.AudioLofi)))
	assert.ErrorIs(t, reg.Validate(&operators.CompileContext{Tracks: tracks}, schemas.AddAudio(schemas.AudioTrap)), schemas.ErrInvalidInput)
	assert.ErrorIs(t, reg.Validate(nil, schemas.AddAudio(schemas.AudioLofi)), schemas.ErrInvalidInput)
}

func TestSimpleOperators(t *testing.T) {
	viral := compile(t, &operators.CompileContext{Duration: 10 * time.Second}, schemas.ViralMode())
	assert.Equal(t, []string{"-i", "input.mp4", "-vf", "eq=saturation=1.3,setpts=0.9*PTS", "-af", "atempo=1.1", "output.mp4"}, viral.Args)
	assert.Equal(t, 9*time.Second, viral.Duration)

	mute := compile(t, nil, schemas.RemoveAudio())
	assert.Contains(t, mute.Args, "-an")
	assert.Equal(t, "output.mp4", mute.Args[len(mute.Args)-1])

	silence := compile(t, nil, schemas.ProcessVideo())
	assert.Contains(t, strings.Join(silence.Args, " "), "silenceremove=")
}

func TestSubtitlesOperator(t *testing.T) {
	spec := compile(t, nil, schemas.AddSubtitles("Olá mundo"))
	assert.Equal(t, []string{
		"-i", "input.mp4",
		"-vf", "subtitles=subtitles.srt:force_style='FontSize=24,PrimaryColour=&HFFFFFF&,OutlineColour=&H000000&,BorderStyle=3'",
		"output.mp4",
	}, spec.Args)
	require.Len(t, spec.Assets, 1)
	assert.Equal(t, "subtitles.srt", spec.Assets[0].Name)
	assert.Equal(t, "1\n00:00:00,000 --> 00:59:59,999\nOlá mundo", string(spec.Assets[0].Data))

	_, err := NewRegistry().Compile(nil, schemas.AddSubtitles("  "))
	assert.True(t, errors.Is(err, schemas.ErrInvalidInput))
}

func TestCompileReplacements(t *testing.T) {
	spec, err := CompileReplacements(map[string]string{"b": "B", "a": "A"})
	require.NoError(t, err)
	assert.Equal(t, "replacements", spec.Operator)
	assert.Equal(t,
		"1\n00:00:00,000 --> 00:59:59,999\nA\n\n2\n00:00:00,000 --> 00:59:59,999\nB",
		string(spec.Assets[0].Data))

	_, err = CompileReplacements(nil)
	assert.ErrorIs(t, err, schemas.ErrEmptyReplacements)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
}

func TestCustomOperator(t *testing.T) {
	spec := compile(t, nil, schemas.Custom("-i {input} -vf hflip {output}"))
	assert.Equal(t, []string{"-i", "input.mp4", "-vf", "hflip", "output.mp4"}, spec.Args)

	assert.True(t, IsTemplate("-i {input} -an {output}"))
	assert.False(t, IsTemplate("modo viral"))

	_, err := NewRegistry().Compile(nil, schemas.Custom("-i {input} {output}"))
	assert.True(t, errors.Is(err, schemas.ErrInvalidInput))
}

func TestRegistry_ListByCategory(t *testing.T) {
	reg := NewRegistry()
	assert.Len(t, reg.List(), 7)

	audio := reg.ListByCategory(operators.CategoryAudio)
	require.Len(t, audio, 2)
	assert.Equal(t, schemas.KindAddAudio, audio[0].Kind())
	assert.Equal(t, schemas.KindRemoveAudio, audio[1].Kind())
}
