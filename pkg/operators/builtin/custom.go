package builtin

import (
	"strings"

	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
)

// Template placeholders
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
)

// IsTemplate reports whether text is a raw ffmpeg template
func IsTemplate(text string) bool {
	return strings.Contains(text, PlaceholderInput) || strings.Contains(text, PlaceholderOutput)
}

// CustomOperator runs a raw ffmpeg argument template
type CustomOperator struct{}

func (o *CustomOperator) Kind() schemas.IntentKind {
	return schemas.KindCustom
}

func (o *CustomOperator) Category() operators.Category {
	return operators.CategoryAdvanced
}

func (o *CustomOperator) Describe() *operators.OperatorDescriptor {
	return &operators.OperatorDescriptor{
		Name:        "custom",
		Kind:        schemas.KindCustom,
		Category:    operators.CategoryAdvanced,
		Description: "Run ffmpeg arguments with {input} and {output} placeholders",
		Parameters: []operators.ParameterDescriptor{
			{
				Name:        "template",
				Type:        operators.TypeString,
				Required:    true,
				Description: "Argument template",
				Examples:    []interface{}{"-i {input} -vf hflip {output}"},
			},
		},
	}
}

func (o *CustomOperator) Validate(intent schemas.Intent) error {
	if len(customArgs(intent.Template)) == 0 {
		return schemas.InvalidInputf("custom template has no arguments")
	}
	return nil
}

// Compile substitutes the placeholders and drops any input or output the
// template names itself; the staged input and output are always used.
func (o *CustomOperator) Compile(ctx *operators.CompileContext, intent schemas.Intent) (*operators.Spec, error) {
	return operators.NewSpec("custom").
		Add(customArgs(intent.Template)...).
		Finish(), nil
}

func customArgs(template string) []string {
	expanded := strings.NewReplacer(
		PlaceholderInput, operators.InputName,
		PlaceholderOutput, operators.OutputName,
	).Replace(template)

	var args []string
	for _, part := range strings.Fields(expanded) {
		if part == "-i" || part == operators.InputName || part == operators.OutputName {
			continue
		}
		args = append(args, part)
	}
	return args
}
