package domain

const (
	// MaxHistoryTurns bounds the transcript replayed into prompts.
	MaxHistoryTurns = 6
	// MaxRecentInputs bounds the ring used for repetition detection.
	MaxRecentInputs = 10
	// EscalationThreshold is the cumulative flag score at which the
	// escalation message becomes due.
	EscalationThreshold = 8.0
)

// ConversationState is the mutable per-session record owned by the chat
// orchestrator for the duration of one turn.
type ConversationState struct {
	SessionID        string
	History          []Turn
	RecentInputs     []string
	FlagScore        float64
	EscalationFired  bool
	LastDetectedFlag string

	// Version is the persisted revision the state was loaded at. Stores use
	// it for optimistic concurrency and it is not part of the reset value.
	Version int64
}

// NewConversationState returns the zero state for a session.
func NewConversationState(sessionID string) *ConversationState {
	return &ConversationState{SessionID: sessionID}
}

// AppendTurn adds a turn and evicts the oldest ones beyond MaxHistoryTurns.
func (s *ConversationState) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	if n := len(s.History); n > MaxHistoryTurns {
		s.History = append([]Turn(nil), s.History[n-MaxHistoryTurns:]...)
	}
}

// SeenRecently reports whether input exactly matches a remembered input.
func (s *ConversationState) SeenRecently(input string) bool {
	for _, prev := range s.RecentInputs {
		if prev == input {
			return true
		}
	}
	return false
}

// RememberInput records a raw user input, keeping the last MaxRecentInputs.
func (s *ConversationState) RememberInput(input string) {
	s.RecentInputs = append(s.RecentInputs, input)
	if n := len(s.RecentInputs); n > MaxRecentInputs {
		s.RecentInputs = append([]string(nil), s.RecentInputs[n-MaxRecentInputs:]...)
	}
}

// EscalationDue reports whether the one-shot escalation should fire now.
func (s *ConversationState) EscalationDue() bool {
	return s.FlagScore >= EscalationThreshold && !s.EscalationFired
}

// Reset replaces the state with its zero value, keeping identity and version.
func (s *ConversationState) Reset() {
	*s = ConversationState{SessionID: s.SessionID, Version: s.Version}
}
