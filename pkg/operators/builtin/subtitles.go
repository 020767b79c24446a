package builtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
)

const subtitleStyle = "FontSize=24,PrimaryColour=&HFFFFFF&,OutlineColour=&H000000&,BorderStyle=3"

// Cues span the whole clip
const cueSpan = "00:00:00,000 --> 00:59:59,999"

// SubtitlesOperator burns a caption over the whole clip
type SubtitlesOperator struct{}

func (o *SubtitlesOperator) Kind() schemas.IntentKind {
	return schemas.KindAddSubtitles
}

func (o *SubtitlesOperator) Category() operators.Category {
	return operators.CategoryGraphics
}

func (o *SubtitlesOperator) Describe() *operators.OperatorDescriptor {
	return &operators.OperatorDescriptor{
		Name:        "subtitles",
		Kind:        schemas.KindAddSubtitles,
		Category:    operators.CategoryGraphics,
		Description: "Burn a caption into the video",
		Parameters: []operators.ParameterDescriptor{
			{
				Name:        "text",
				Type:        operators.TypeString,
				Required:    true,
				Description: "Caption text",
				Examples:    []interface{}{"Olá mundo"},
			},
		},
	}
}

func (o *SubtitlesOperator) Validate(intent schemas.Intent) error {
	if strings.TrimSpace(intent.Text) == "" {
		return schemas.InvalidInputf("subtitle text is empty")
	}
	return nil
}

func (o *SubtitlesOperator) Compile(ctx *operators.CompileContext, intent schemas.Intent) (*operators.Spec, error) {
	return burnIn("subtitles", []string{intent.Text}), nil
}

// CompileReplacements burns the replacement texts of an OCR session in one
// pass, one cue per pair ordered by the original text.
func CompileReplacements(replacements map[string]string) (*operators.Spec, error) {
	if len(replacements) == 0 {
		return nil, schemas.ErrEmptyReplacements
	}

	originals := make([]string, 0, len(replacements))
	for original := range replacements {
		originals = append(originals, original)
	}
	sort.Strings(originals)

	texts := make([]string, 0, len(originals))
	for _, original := range originals {
		texts = append(texts, replacements[original])
	}
	return burnIn("replacements", texts), nil
}

// SRT renders one full-length cue per text
func SRT(texts []string) []byte {
	var b strings.Builder
	for i, text := range texts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d\n%s\n%s", i+1, cueSpan, text)
	}
	return []byte(b.String())
}

func burnIn(name string, texts []string) *operators.Spec {
	filter := fmt.Sprintf("subtitles=%s:force_style='%s'", operators.SubtitlesName, subtitleStyle)
	return operators.NewSpec(name).
		Add("-vf", filter).
		Stage(operators.Asset{Name: operators.SubtitlesName, Data: SRT(texts)}).
		Finish()
}
