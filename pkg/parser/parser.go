// Package parser turns free-form editing commands into typed intents.
//
// Parsing is a greedy lexical cascade: rules are checked in a fixed order
// and the first one that matches decides the intent. Inputs that trigger
// several keyword sets are resolved by that order alone.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/chicogong/vidioai/pkg/schemas"
)

var (
	timestampRe = regexp.MustCompile(`(\d+):(\d+)`)
	subtitleRe  = regexp.MustCompile(`(?i)legenda:?\s*(.+)$|subtítulo:?\s*(.+)$`)
)

// Rule is one step of the cascade. Match returns false to pass to the next rule.
type Rule struct {
	Name  string
	Match func(text string) (schemas.Intent, bool)
}

// Parser classifies commands with an ordered rule list
type Parser struct {
	rules []Rule
}

// New returns a parser with the default rule cascade
func New() *Parser {
	return &Parser{rules: DefaultRules()}
}

// NewWithRules returns a parser using the given rules in order
func NewWithRules(rules []Rule) *Parser {
	return &Parser{rules: rules}
}

// Parse classifies text. It never fails; unmatched input yields an Unknown intent.
func (p *Parser) Parse(text string) schemas.Intent {
	intent, _ := p.ParseRule(text)
	return intent
}

// ParseRule classifies text and also returns the name of the rule that matched,
// or "" when nothing did.
func (p *Parser) ParseRule(text string) (schemas.Intent, string) {
	lower := strings.ToLower(text)
	for _, rule := range p.rules {
		if intent, ok := rule.Match(lower); ok {
			return intent, rule.Name
		}
	}
	return schemas.Unknown(), ""
}

// Parse classifies text with the default cascade
func Parse(text string) schemas.Intent {
	return defaultParser.Parse(text)
}

var defaultParser = New()

// DefaultRules returns the standard cascade. Text handed to Match is lowercased.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "silence", Match: matchSilence},
		{Name: "cut", Match: matchCut},
		{Name: "viral", Match: matchViral},
		{Name: "subtitles", Match: matchSubtitles},
		{Name: "audio", Match: matchAudio},
		{Name: "remove_audio", Match: matchRemoveAudio},
		{Name: "sentiment", Match: matchSentiment},
	}
}

func matchSilence(text string) (schemas.Intent, bool) {
	if strings.Contains(text, "corte") && strings.Contains(text, "silencio") {
		return schemas.ProcessVideo(), true
	}
	return schemas.Intent{}, false
}

// matchCut uses the first two MM:SS matches anywhere in the text,
// regardless of which phrase they follow.
func matchCut(text string) (schemas.Intent, bool) {
	if !containsAny(text, "corte entre", "cortar entre") {
		return schemas.Intent{}, false
	}

	matches := timestampRe.FindAllStringSubmatch(text, 2)
	if len(matches) < 2 {
		return schemas.Intent{}, false
	}

	start, ok := clockSeconds(matches[0])
	if !ok {
		return schemas.Intent{}, false
	}
	end, ok := clockSeconds(matches[1])
	if !ok {
		return schemas.Intent{}, false
	}

	return schemas.CutVideo(start, end), true
}

func clockSeconds(m []string) (int, bool) {
	minutes, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[2])
	if err != nil || minutes > (math.MaxInt-seconds)/60 {
		return 0, false
	}
	return minutes*60 + seconds, true
}

func matchViral(text string) (schemas.Intent, bool) {
	if strings.Contains(text, "modo viral") {
		return schemas.ViralMode(), true
	}
	return schemas.Intent{}, false
}

func matchSubtitles(text string) (schemas.Intent, bool) {
	if !containsAny(text, "legenda", "subtítulo") {
		return schemas.Intent{}, false
	}

	m := subtitleRe.FindStringSubmatch(text)
	if m == nil {
		return schemas.Intent{}, false
	}

	caption := m[1]
	if caption == "" {
		caption = m[2]
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return schemas.Intent{}, false
	}

	return schemas.AddSubtitles(caption), true
}

func matchAudio(text string) (schemas.Intent, bool) {
	if !containsAny(text, "música", "audio") {
		return schemas.Intent{}, false
	}
	return schemas.AddAudio(audioCategory(text)), true
}

// audioCategory picks the first matching sub-keyword: lofi > trap > funny.
func audioCategory(text string) schemas.AudioCategory {
	switch {
	case containsAny(text, "lo-fi", "lofi"):
		return schemas.AudioLofi
	case strings.Contains(text, "trap"):
		return schemas.AudioTrap
	case containsAny(text, "engraçad", "funny"):
		return schemas.AudioFunny
	default:
		return schemas.AudioOther
	}
}

// matchRemoveAudio only sees the accented "áudio"; the plain "audio"
// spelling is claimed by matchAudio first.
func matchRemoveAudio(text string) (schemas.Intent, bool) {
	if strings.Contains(text, "remova") && strings.Contains(text, "áudio") {
		return schemas.RemoveAudio(), true
	}
	return schemas.Intent{}, false
}

var sentimentWords = []string{"legal", "melhor", "bom", "nice", "better", "good"}

func matchSentiment(text string) (schemas.Intent, bool) {
	if containsAny(text, sentimentWords...) {
		return schemas.ViralMode(), true
	}
	return schemas.Intent{}, false
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
