package domain

import "time"

const (
	ActorUser      = "user"
	ActorAssistant = "assistant"

	AlertTypeBehavioral = "behavioral"
)

// LogRecord is one entry of the append-only interaction log.
type LogRecord struct {
	SessionID string    `json:"sessionId,omitempty"`
	Actor     string    `json:"actor"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ActorRole string    `json:"actorRole"`
	FlagScore *float64  `json:"flagScore,omitempty"`
	FlagLabel string    `json:"flagLabel,omitempty"`
}

// AlertRecord is emitted when an (actor role, flag) pair recurs.
type AlertRecord struct {
	ActorRole string    `json:"actorRole"`
	Flag      string    `json:"flag"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
}
