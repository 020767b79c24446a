package builtin

import (
	"strconv"
	"time"

	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
)

// CutOperator keeps the [start, end) window of the source
type CutOperator struct{}

func (o *CutOperator) Kind() schemas.IntentKind {
	return schemas.KindCutVideo
}

func (o *CutOperator) Category() operators.Category {
	return operators.CategoryTimeline
}

func (o *CutOperator) Describe() *operators.OperatorDescriptor {
	return &operators.OperatorDescriptor{
		Name:        "cut",
		Kind:        schemas.KindCutVideo,
		Category:    operators.CategoryTimeline,
		Description: "Keep the segment between two timestamps",
		Parameters: []operators.ParameterDescriptor{
			{
				Name:        "start",
				Type:        operators.TypeTimecode,
				Required:    true,
				Description: "Start of the kept segment, in seconds",
				Examples:    []interface{}{"1:05", 65},
			},
			{
				Name:        "end",
				Type:        operators.TypeTimecode,
				Required:    true,
				Description: "End of the kept segment, in seconds",
				Examples:    []interface{}{"2:10", 130},
			},
		},
	}
}

func (o *CutOperator) Validate(intent schemas.Intent) error {
	if intent.StartSeconds < 0 || intent.EndSeconds < 0 {
		return schemas.InvalidInputf("cut window must not be negative (%d-%d)", intent.StartSeconds, intent.EndSeconds)
	}
	if intent.EndSeconds <= intent.StartSeconds {
		return schemas.InvalidInputf("cut end %ds must be after start %ds", intent.EndSeconds, intent.StartSeconds)
	}
	return nil
}

func (o *CutOperator) Compile(ctx *operators.CompileContext, intent schemas.Intent) (*operators.Spec, error) {
	spec := operators.NewSpec("cut").
		Add("-ss", strconv.Itoa(intent.StartSeconds), "-to", strconv.Itoa(intent.EndSeconds)).
		Finish()

	spec.Duration = time.Duration(intent.EndSeconds-intent.StartSeconds) * time.Second
	if ctx.Duration > 0 && ctx.Duration-time.Duration(intent.StartSeconds)*time.Second < spec.Duration {
		spec.Duration = ctx.Duration - time.Duration(intent.StartSeconds)*time.Second
		if spec.Duration < 0 {
			spec.Duration = 0
		}
	}
	return spec, nil
}
