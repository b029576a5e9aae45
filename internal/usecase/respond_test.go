package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

func fixedChooser(i int) Chooser {
	return func(int) int { return i }
}

func TestExtractContinuation(t *testing.T) {
	raw := "Intro\nUser: hi\nAssistant: old\nUser: help\nAssistant:  Here is what I think.  "
	require.Equal(t, "Here is what I think.", extractContinuation(raw))
	require.Equal(t, "plain text", extractContinuation("  plain text \n"))
}

func TestTruncateReply(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxReplyRunes)
		require.Equal(t, text, truncateReply(text))
	})

	t.Run("cuts back to last period", func(t *testing.T) {
		sentence := strings.Repeat("x", 99) + "."
		text := strings.Repeat(sentence, 8)
		got := truncateReply(text)

		require.True(t, strings.HasSuffix(got, ellipsis))
		body := strings.TrimSuffix(got, ellipsis)
		require.Equal(t, 6*100-1, utf8.RuneCountInString(body))
		require.True(t, strings.HasPrefix(text, body))
	})

	t.Run("hard cut without period", func(t *testing.T) {
		text := strings.Repeat("é", 900)
		got := truncateReply(text)
		require.Equal(t, truncatedRunes+1, utf8.RuneCountInString(got))
		require.True(t, strings.HasSuffix(got, ellipsis))
	})

	t.Run("never exceeds limit", func(t *testing.T) {
		text := strings.Repeat("word ", 300)
		require.LessOrEqual(t, utf8.RuneCountInString(truncateReply(text)), truncatedRunes+1)
	})
}

func TestFinalize_EmpatheticOpening(t *testing.T) {
	r := responder{choose: fixedChooser(1), openings: true}
	state := domain.NewConversationState("s1")

	got := r.finalize("Assistant: Let's take it one step at a time.", "I feel lost today", state)
	require.Equal(t, empatheticOpeners[1]+" Let's take it one step at a time.", got)

	last := state.History[len(state.History)-1]
	require.Equal(t, domain.TurnRoleAssistant, last.Role)
	require.Equal(t, got, last.Content)
}

func TestFinalize_NoOpeningWhenAlreadyPresentOrNotTriggered(t *testing.T) {
	r := responder{choose: fixedChooser(0), openings: true}

	already := empatheticOpeners[2] + " Go on."
	require.Equal(t, already, r.finalize(already, "i need help", domain.NewConversationState("s1")))
	require.Equal(t, "Sure.", r.finalize("Sure.", "what time is it", domain.NewConversationState("s1")))

	disabled := responder{choose: fixedChooser(0)}
	require.Equal(t, "Sure.", disabled.finalize("Sure.", "I feel sad", domain.NewConversationState("s1")))
}

func TestFinalize_EscalatesOnce(t *testing.T) {
	r := responder{choose: fixedChooser(0)}
	state := domain.NewConversationState("s1")
	state.FlagScore = domain.EscalationThreshold

	first := r.finalize("Okay.", "input", state)
	require.Equal(t, "Okay."+escalationReply, first)
	require.True(t, state.EscalationFired)

	state.FlagScore += 10
	second := r.finalize("Okay.", "input", state)
	require.Equal(t, "Okay.", second)
}

func TestFinalize_BelowThresholdDoesNotEscalate(t *testing.T) {
	r := responder{choose: fixedChooser(0)}
	state := domain.NewConversationState("s1")
	state.FlagScore = domain.EscalationThreshold - 0.5

	require.Equal(t, "Okay.", r.finalize("Okay.", "input", state))
	require.False(t, state.EscalationFired)
}

func TestFinalize_TruncatesAfterEscalation(t *testing.T) {
	r := responder{choose: fixedChooser(0)}
	state := domain.NewConversationState("s1")
	state.FlagScore = 9

	got := r.finalize(strings.Repeat("y", 800), "input", state)
	require.True(t, state.EscalationFired)
	require.True(t, strings.HasSuffix(got, escalationReply))
	require.LessOrEqual(t, utf8.RuneCountInString(got), truncatedRunes+1)
}

func TestFinalize_EscalationSurvivesNearLimitReply(t *testing.T) {
	r := responder{choose: fixedChooser(0)}
	state := domain.NewConversationState("s1")
	state.FlagScore = 9

	raw := strings.Repeat(strings.Repeat("z", 68)+". ", 10) // 700 runes
	got := r.finalize(raw, "input", state)

	require.True(t, strings.HasSuffix(got, escalationReply))
	body := strings.TrimSuffix(got, escalationReply)
	require.True(t, strings.HasSuffix(body, ellipsis))
	require.LessOrEqual(t, utf8.RuneCountInString(got), maxReplyRunes)
}

func TestFinalize_ShortReplyKeepsEscalationWhole(t *testing.T) {
	r := responder{choose: fixedChooser(0)}
	state := domain.NewConversationState("s1")
	state.FlagScore = 9

	got := r.finalize("Short answer.", "input", state)
	require.Equal(t, "Short answer."+escalationReply, got)
}

func TestFinalize_TypographicApostropheTriggersOpening(t *testing.T) {
	r := responder{choose: fixedChooser(3), openings: true}
	got := r.finalize("We can work through it.", "I’m overwhelmed today", domain.NewConversationState("s1"))
	require.Equal(t, empatheticOpeners[3]+" We can work through it.", got)
}
