// Package behavior accumulates the per-conversation behaviour flag score.
//
// Flag scores are heuristic engagement signals used to decide when to offer
// a gentle follow-up. They are not diagnostic.
package behavior

import (
	"context"
	"errors"
	"log/slog"

	"support-agent/internal/domain"
)

// Flag labels shared by every strategy.
const (
	FlagOverwhelm  = "overwhelm"
	FlagConfusion  = "confusion"
	FlagFocusIssue = "focus issue"
	FlagNeutral    = "neutral"
)

// Assessment is a strategy's verdict on a single input, before the
// repetition bonus is applied.
type Assessment struct {
	Increment float64
	Flag      string
}

// Strategy scores one input. Implementations must be safe for concurrent use.
type Strategy interface {
	Assess(ctx context.Context, input string) (Assessment, error)
	RepetitionBonus() float64
}

// Result describes how a single Score call changed the state.
type Result struct {
	Increment float64
	Total     float64
	Flag      string
	Repeated  bool
	// Degraded is set when the strategy failed and contributed nothing.
	Degraded bool
}

// Scorer applies a Strategy to a conversation state.
type Scorer struct {
	strategy Strategy
}

func NewScorer(strategy Strategy) (*Scorer, error) {
	if strategy == nil {
		return nil, errors.New("behavior: strategy must not be nil")
	}
	return &Scorer{strategy: strategy}, nil
}

// Score assesses input, adds the increment to state.FlagScore and records
// the input for repetition detection. A failing strategy degrades to a zero
// increment; the repetition bonus still applies.
func (s *Scorer) Score(ctx context.Context, input string, state *domain.ConversationState) Result {
	var res Result

	a, err := s.strategy.Assess(ctx, input)
	if err != nil {
		slog.Warn("behavior assessment failed, scoring as neutral", "session", state.SessionID, "err", err)
		a = Assessment{}
		res.Degraded = true
	}
	if a.Increment < 0 {
		a.Increment = 0
	}

	res.Increment = a.Increment
	if state.SeenRecently(input) {
		res.Repeated = true
		res.Increment += s.strategy.RepetitionBonus()
	}
	state.RememberInput(input)

	state.FlagScore += res.Increment
	if a.Flag == FlagNeutral {
		a.Flag = ""
	}
	state.LastDetectedFlag = a.Flag

	res.Total = state.FlagScore
	res.Flag = a.Flag
	return res
}
