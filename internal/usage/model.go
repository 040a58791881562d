package usage

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects which counter a chat creation consumes.
type Kind string

const (
	KindNormal    Kind = "normal"
	KindInterview Kind = "interview"
)

// ParseKind accepts "normal"/"general" and "interview".
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "normal", "general", "chat":
		return KindNormal, nil
	case "interview":
		return KindInterview, nil
	default:
		return "", fmt.Errorf("unknown chat kind %q", raw)
	}
}

const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Limits caps chat creations per period.
type Limits struct {
	Normal    int
	Interview int
}

// DefaultFreeLimits applies when a user has no subscription row.
func DefaultFreeLimits() Limits {
	return Limits{Normal: 10, Interview: 5}
}

// PremiumLimits is effectively unlimited.
func PremiumLimits() Limits {
	return Limits{Normal: 999999, Interview: 999999}
}

// Counter is one user's usage snapshot for the current period.
type Counter struct {
	UserID         string    `json:"userId"`
	Tier           string    `json:"tier"`
	NormalUsed     int       `json:"normalUsed"`
	InterviewUsed  int       `json:"interviewUsed"`
	NormalLimit    int       `json:"normalLimit"`
	InterviewLimit int       `json:"interviewLimit"`
	PeriodStart    time.Time `json:"periodStart"`
}

// Used returns the consumed count for kind.
func (c Counter) Used(kind Kind) int {
	if kind == KindInterview {
		return c.InterviewUsed
	}
	return c.NormalUsed
}

// Limit returns the tier limit for kind.
func (c Counter) Limit(kind Kind) int {
	if kind == KindInterview {
		return c.InterviewLimit
	}
	return c.NormalLimit
}

// Remaining never goes below zero.
func (c Counter) Remaining(kind Kind) int {
	if r := c.Limit(kind) - c.Used(kind); r > 0 {
		return r
	}
	return 0
}
