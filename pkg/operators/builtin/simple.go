package builtin

import (
	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
)

// Audio below -30dB for over a second counts as silence
const silenceFilter = "silenceremove=start_periods=1:stop_periods=-1:stop_duration=1:stop_threshold=-30dB"

// SilenceOperator trims silent stretches from the audio track
type SilenceOperator struct{}

func (o *SilenceOperator) Kind() schemas.IntentKind { return schemas.KindProcessVideo }

func (o *SilenceOperator) Category() operators.Category { return operators.CategoryTimeline }

func (o *SilenceOperator) Describe() *operators.OperatorDescriptor {
	return &operators.OperatorDescriptor{
		Name:        "silence",
		Kind:        schemas.KindProcessVideo,
		Category:    operators.CategoryTimeline,
		Description: "Remove silent stretches from the audio",
	}
}

func (o *SilenceOperator) Validate(intent schemas.Intent) error { return nil }

func (o *SilenceOperator) Compile(ctx *operators.CompileContext, intent schemas.Intent) (*operators.Spec, error) {
	return operators.NewSpec("silence").
		Add("-af", silenceFilter, "-c:v", "copy").
		Finish(), nil
}

// RemoveAudioOperator drops every audio stream
type RemoveAudioOperator struct{}

func (o *RemoveAudioOperator) Kind() schemas.IntentKind { return schemas.KindRemoveAudio }

func (o *RemoveAudioOperator) Category() operators.Category { return operators.CategoryAudio }

func (o *RemoveAudioOperator) Describe() *operators.OperatorDescriptor {
	return &operators.OperatorDescriptor{
		Name:        "remove-audio",
		Kind:        schemas.KindRemoveAudio,
		Category:    operators.CategoryAudio,
		Description: "Strip the audio track",
	}
}

func (o *RemoveAudioOperator) Validate(intent schemas.Intent) error { return nil }

func (o *RemoveAudioOperator) Compile(ctx *operators.CompileContext, intent schemas.Intent) (*operators.Spec, error) {
	return operators.NewSpec("remove-audio").
		Add("-c:v", "copy", "-an").
		Finish(), nil
}

// ViralOperator boosts saturation and speeds playback up by 10%
type ViralOperator struct{}

func (o *ViralOperator) Kind() schemas.IntentKind { return schemas.KindViralMode }

func (o *ViralOperator) Category() operators.Category { return operators.CategoryVideo }

func (o *ViralOperator) Describe() *operators.OperatorDescriptor {
	return &operators.OperatorDescriptor{
		Name:        "viral",
		Kind:        schemas.KindViralMode,
		Category:    operators.CategoryVideo,
		Description: "Boost saturation and speed up playback",
	}
}

func (o *ViralOperator) Validate(intent schemas.Intent) error { return nil }

func (o *ViralOperator) Compile(ctx *operators.CompileContext, intent schemas.Intent) (*operators.Spec, error) {
	spec := operators.NewSpec("viral").
		Add("-vf", "eq=saturation=1.3,setpts=0.9*PTS", "-af", "atempo=1.1").
		Finish()
	if ctx.Duration > 0 {
		spec.Duration = ctx.Duration * 9 / 10
	}
	return spec, nil
}
