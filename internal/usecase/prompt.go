package usecase

import (
	"strings"

	"support-agent/internal/domain"
)

const (
	// generationCue ends every prompt; the model continues after it.
	generationCue = "Assistant:"

	greetingReply = "👋 Hello! I'm here to listen and support you. What's on your mind today?"

	sentimentBand = 0.3
)

var greetings = map[string]struct{}{
	"hi":    {},
	"hello": {},
	"hey":   {},
}

var roleIntros = map[domain.SupportRole]string{
	domain.RoleParent:     "You are helping a parent who is worried about their neurodiverse child. Answer with clarity and kindness.",
	domain.RoleTeacher:    "You are supporting a teacher who wants to create a kind, inclusive classroom. Be practical and empathetic.",
	domain.RoleMentor:     "You are assisting a mentor who guides neurodiverse youth emotionally. Be thoughtful and calm.",
	domain.RoleIndividual: "You are talking to someone who is neurodiverse and looking for support. Be validating and gentle.",
	domain.RoleGeneral:    "You are a helpful and supportive assistant. Keep responses friendly, empathetic, and informative.",
}

func isGreeting(input string) bool {
	_, ok := greetings[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

func roleIntro(role domain.SupportRole) string {
	if intro, ok := roleIntros[role]; ok {
		return intro
	}
	return roleIntros[domain.RoleGeneral]
}

func toneDirective(sentiment float64) string {
	tone := "You are a kind, emotionally intelligent assistant. Respond empathetically, understand the user's feelings, " +
		"and provide supportive, helpful answers that feel natural and thoughtful."
	switch {
	case sentiment < -sentimentBand:
		tone += " The user might be feeling overwhelmed. Validate their emotions gently and be calming."
	case sentiment > sentimentBand:
		tone += " The user seems encouraged. Reinforce that optimism and confidence."
	}
	return tone
}

func renderTranscript(history []domain.Turn) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		if t.Role == domain.TurnRoleUser {
			lines = append(lines, "User: "+t.Content)
		} else {
			lines = append(lines, "Assistant: "+t.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// composePrompt builds the generation prompt. history must already contain
// the current user turn.
func composePrompt(role domain.SupportRole, sentiment float64, history []domain.Turn) string {
	return strings.Join([]string{
		roleIntro(role),
		toneDirective(sentiment),
		renderTranscript(history),
		generationCue,
	}, "\n")
}
