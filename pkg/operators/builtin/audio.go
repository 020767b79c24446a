package builtin

import (
	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
)

// Background track mixed at half the volume of the original audio
const mixFilter = "[0:a]volume=1[a1];[1:a]volume=0.5[a2];[a1][a2]amix=inputs=2:duration=longest"

// AudioOperator mixes a background track under the source audio
type AudioOperator struct{}

func (o *AudioOperator) Kind() schemas.IntentKind {
	return schemas.KindAddAudio
}

func (o *AudioOperator) Category() operators.Category {
	return operators.CategoryAudio
}

func (o *AudioOperator) Describe() *operators.OperatorDescriptor {
	return &operators.OperatorDescriptor{
		Name:        "audio",
		Kind:        schemas.KindAddAudio,
		Category:    operators.CategoryAudio,
		Description: "Mix a background track from the audio library",
		Parameters: []operators.ParameterDescriptor{
			{
				Name:        "category",
				Type:        operators.TypeEnum,
				Default:     string(schemas.AudioOther),
				Description: "Track family",
				Examples:    []interface{}{"lofi", "trap", "funny", "other"},
			},
		},
	}
}

func (o *AudioOperator) Validate(intent schemas.Intent) error {
	if intent.AudioCategory != "" && !intent.AudioCategory.Valid() {
		return schemas.InvalidInputf("unknown audio category %q", intent.AudioCategory)
	}
	return nil
}

// Resolve checks that the library has a track for the intent's category
func (o *AudioOperator) Resolve(ctx *operators.CompileContext, intent schemas.Intent) error {
	_, err := o.track(ctx, intent)
	return err
}

func (o *AudioOperator) Compile(ctx *operators.CompileContext, intent schemas.Intent) (*operators.Spec, error) {
	uri, err := o.track(ctx, intent)
	if err != nil {
		return nil, err
	}

	spec := operators.NewSpec("audio").
		Add("-i", operators.TrackName, "-filter_complex", mixFilter).
		Stage(operators.Asset{Name: operators.TrackName, URI: uri}).
		Finish()
	return spec, nil
}

func (o *AudioOperator) track(ctx *operators.CompileContext, intent schemas.Intent) (string, error) {
	category := intent.AudioCategory
	if category == "" {
		category = schemas.AudioOther
	}
	if ctx.Tracks == nil {
		return "", schemas.InvalidInputf("no audio library configured")
	}
	uri, ok := ctx.Tracks.ForCategory(category)
	if !ok {
		return "", schemas.InvalidInputf("no track for audio category %q", category)
	}
	return uri, nil
}
