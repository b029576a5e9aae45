package domain

import "strings"

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// Turn is one entry of the windowed conversation transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SupportRole is the audience the assistant is tailored for.
type SupportRole string

const (
	RoleParent     SupportRole = "parent"
	RoleTeacher    SupportRole = "teacher"
	RoleMentor     SupportRole = "mentor"
	RoleIndividual SupportRole = "individual"
	RoleGeneral    SupportRole = "general"
)

// ParseSupportRole matches s case-insensitively against the known roles.
// Anything unrecognised, including the empty string, is RoleGeneral.
func ParseSupportRole(s string) SupportRole {
	switch r := SupportRole(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleParent, RoleTeacher, RoleMentor, RoleIndividual:
		return r
	default:
		return RoleGeneral
	}
}

// LabelScore is one ranked label returned by a classification capability.
type LabelScore struct {
	Label string
	Score float64
}
