package conversation

import (
	"strings"
	"time"
)

// Role is the speaker of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects the persona used for a session.
type Mode string

const (
	ModeGeneral   Mode = "general"
	ModeInterview Mode = "interview"
)

// Difficulty tunes the interviewer's behaviour.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	CreatedAt time.Time `json:"timestamp,omitempty"`
	AudioRef  string    `json:"audio_url,omitempty"`
}

// PersonaContext parameterises the system prompt for one request.
type PersonaContext struct {
	Mode         Mode
	RolePosition string
	CompanyName  string
	Difficulty   Difficulty
	Language     string
}

// NormalizeRole maps anything that is not "user" to assistant, matching how
// client-supplied history is replayed.
func NormalizeRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleUser)) {
		return RoleUser
	}
	return RoleAssistant
}
