package conversation

import (
	"fmt"
	"strings"

	"coach-backend/internal/extract"
)

// HistoryWindow is how many prior turns are replayed to the model.
const HistoryWindow = 10

const (
	attachmentHeader  = "\n\nAttached file content:\n"
	analyzePrompt     = "Please analyze this attached file:\n\n"
	analyzeInterview  = "Please analyze this attached file for the interview:\n\n"
	emptyUserFallback = "Hello"
)

// Assemble builds the ordered turns sent to the completion provider: the
// system prompt, the last HistoryWindow non-empty history turns, then the
// current user turn with any attachment text appended.
func Assemble(systemPrompt string, history []Turn, userText string, extracted []extract.Result) []Turn {
	return AssembleFor(ModeGeneral, systemPrompt, history, userText, extracted)
}

// AssembleFor is Assemble with the mode-specific wording for attachment-only messages.
func AssembleFor(mode Mode, systemPrompt string, history []Turn, userText string, extracted []extract.Result) []Turn {
	window := history
	if len(window) > HistoryWindow {
		window = window[len(window)-HistoryWindow:]
	}

	out := make([]Turn, 0, len(window)+2)
	out = append(out, Turn{Role: RoleSystem, Text: systemPrompt})
	for _, t := range window {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := t.Role
		if role != RoleUser {
			role = RoleAssistant
		}
		out = append(out, Turn{Role: role, Text: t.Text, CreatedAt: t.CreatedAt, AudioRef: t.AudioRef})
	}

	out = append(out, Turn{Role: RoleUser, Text: userContent(mode, userText, extracted)})
	return out
}

func userContent(mode Mode, userText string, extracted []extract.Result) string {
	attached := AttachmentBlock(extracted)
	switch {
	case attached == "":
		if strings.TrimSpace(userText) == "" {
			return emptyUserFallback
		}
		return userText
	case strings.TrimSpace(userText) != "":
		return userText + attachmentHeader + attached
	case mode == ModeInterview:
		return analyzeInterview + attached
	default:
		return analyzePrompt + attached
	}
}

// AttachmentBlock renders one "--- name ---" section per result.
func AttachmentBlock(extracted []extract.Result) string {
	if len(extracted) == 0 {
		return ""
	}
	parts := make([]string, 0, len(extracted))
	for _, r := range extracted {
		parts = append(parts, fmt.Sprintf("--- %s ---\n%s\n", r.DisplayName, r.Text))
	}
	return strings.Join(parts, "\n")
}
