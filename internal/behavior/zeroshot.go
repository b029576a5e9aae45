package behavior

import (
	"context"
	"errors"
	"fmt"

	"support-agent/internal/domain"
)

const zeroShotRepeatBonus = 0.5

// CandidateLabels is the fixed label set sent to the zero-shot classifier.
var CandidateLabels = []string{FlagOverwhelm, FlagConfusion, FlagFocusIssue, FlagNeutral}

// Classifier is the external zero-shot classification capability.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error)
}

// ZeroShot delegates scoring to a Classifier. The top label's confidence is
// the increment unless that label is neutral.
type ZeroShot struct {
	classifier Classifier
}

func NewZeroShot(c Classifier) (*ZeroShot, error) {
	if c == nil {
		return nil, errors.New("behavior: classifier must not be nil")
	}
	return &ZeroShot{classifier: c}, nil
}

func (z *ZeroShot) Assess(ctx context.Context, input string) (Assessment, error) {
	ranked, err := z.classifier.Classify(ctx, input, CandidateLabels)
	if err != nil {
		return Assessment{}, fmt.Errorf("behavior: classify: %w", err)
	}
	if len(ranked) == 0 {
		return Assessment{}, errors.New("behavior: classifier returned no labels")
	}

	top := ranked[0]
	for _, ls := range ranked[1:] {
		if ls.Score > top.Score {
			top = ls
		}
	}
	if top.Label == FlagNeutral {
		return Assessment{Flag: FlagNeutral}, nil
	}
	return Assessment{Increment: top.Score, Flag: top.Label}, nil
}

func (z *ZeroShot) RepetitionBonus() float64 { return zeroShotRepeatBonus }
