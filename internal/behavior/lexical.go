package behavior

import (
	"context"
	"strings"
)

const (
	lexicalCategoryPoints = 2.0
	lexicalRepeatBonus    = 2.0
)

type category struct {
	flag    string
	phrases []string
}

// Categories are scanned in this order; the first match names the flag.
var lexicalCategories = []category{
	{flag: FlagOverwhelm, phrases: []string{
		"overwhelmed", "overwhelming", "too much", "can't cope", "cant cope",
		"can't handle", "cant handle", "stressed out", "burnt out", "burned out", "exhausted",
	}},
	{flag: FlagConfusion, phrases: []string{
		"confused", "confusing", "i don't understand", "i dont understand", "don't get it",
		"dont get it", "makes no sense", "what do you mean", "lost track of what",
	}},
	{flag: FlagFocusIssue, phrases: []string{
		"can't focus", "cant focus", "can't concentrate", "cant concentrate", "distracted",
		"zoning out", "zone out", "mind wanders", "keep forgetting", "lose focus",
	}},
}

// Lexical scores inputs by keyword matching. Each matching category adds a
// fixed two points regardless of how many of its phrases occur.
type Lexical struct{}

func NewLexical() Lexical { return Lexical{} }

func (Lexical) Assess(_ context.Context, input string) (Assessment, error) {
	text := Normalize(input)
	var a Assessment
	for _, c := range lexicalCategories {
		if !containsAny(text, c.phrases) {
			continue
		}
		a.Increment += lexicalCategoryPoints
		if a.Flag == "" {
			a.Flag = c.flag
		}
	}
	return a, nil
}

func (Lexical) RepetitionBonus() float64 { return lexicalRepeatBonus }

var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'", "\u02bc", "'")

// Normalize lowercases input and folds typographic apostrophes into ASCII
// ones, the only form phrase lists are written in.
func Normalize(input string) string {
	return apostrophes.Replace(strings.ToLower(input))
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
