package usecase

import (
	"math/rand"
	"strings"
	"unicode/utf8"

	"support-agent/internal/behavior"
	"support-agent/internal/domain"
)

const (
	maxReplyRunes   = 700
	truncatedRunes  = 680
	ellipsis        = "…"
	escalationReply = "\n\n🧠 I've noticed a few moments in our chat that seem to feel heavy or hard to hold onto. " +
		"If it would help, we could gently explore those patterns together. Would you like that?"
)

var emotionalTriggers = []string{
	"i feel", "i'm overwhelmed", "im overwhelmed", "i need help", "i'm struggling",
	"i am struggling", "i'm scared", "i'm anxious", "i'm so tired", "i can't do this",
}

var empatheticOpeners = []string{
	"I hear you.",
	"That sounds really hard.",
	"Thank you for sharing that with me.",
	"It makes sense that you feel this way.",
}

// Chooser returns an index in [0, n). It is injectable so tests can pin the
// opener that gets picked.
type Chooser func(n int) int

func randomChooser(n int) int {
	return rand.Intn(n)
}

type responder struct {
	choose   Chooser
	openings bool
}

// finalize shapes raw generated text into the reply and commits the
// assistant turn. It may set state.EscalationFired.
func (r responder) finalize(raw, input string, state *domain.ConversationState) string {
	text := extractContinuation(raw)
	if r.openings {
		text = r.withEmpatheticOpening(text, input)
	}
	if state.EscalationDue() {
		// the escalation text is never cut
		room := utf8.RuneCountInString(escalationReply)
		text = truncateWithin(text, maxReplyRunes-room, truncatedRunes-room) + escalationReply
		state.EscalationFired = true
	} else {
		text = truncateReply(text)
	}
	state.AppendTurn(domain.TurnRoleAssistant, text)
	return text
}

// extractContinuation keeps what follows the last generation cue.
func extractContinuation(raw string) string {
	if i := strings.LastIndex(raw, generationCue); i >= 0 {
		raw = raw[i+len(generationCue):]
	}
	return strings.TrimSpace(raw)
}

func (r responder) withEmpatheticOpening(text, input string) string {
	lowered := behavior.Normalize(input)
	triggered := false
	for _, t := range emotionalTriggers {
		if strings.Contains(lowered, t) {
			triggered = true
			break
		}
	}
	if !triggered {
		return text
	}
	for _, o := range empatheticOpeners {
		if strings.HasPrefix(text, o) {
			return text
		}
	}
	choose := r.choose
	if choose == nil {
		choose = randomChooser
	}
	return strings.TrimSpace(empatheticOpeners[choose(len(empatheticOpeners))] + " " + text)
}

// truncateReply shortens replies over maxReplyRunes to the last full sentence
// inside the first truncatedRunes runes. Without a period in that window the
// text is hard-cut at truncatedRunes. An ellipsis is appended either way.
func truncateReply(text string) string {
	return truncateWithin(text, maxReplyRunes, truncatedRunes)
}

func truncateWithin(text string, limit, keep int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	window := string(runes[:keep])
	if i := strings.LastIndex(window, "."); i > 0 {
		window = window[:i]
	}
	return strings.TrimRight(window, " \n\t") + ellipsis
}
