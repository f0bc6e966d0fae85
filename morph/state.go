package morph

import (
	"strings"
)

// Snapshot is the conversation state preserved across a morph switch. It is a
// pure data copy: taking one performs no I/O, and it is owned exclusively by
// the transition that created it until Restore discards it.
type Snapshot struct {
	History         []Message
	CurrentMorph    string
	LastUserMessage string
	Summary         string
}

// TakeSnapshot copies the conversation state ahead of a switch.
func TakeSnapshot(conversation []Message, currentMorph string) Snapshot {
	history := make([]Message, len(conversation))
	copy(history, conversation)
	return Snapshot{
		History:         history,
		CurrentMorph:    currentMorph,
		LastUserMessage: lastUserMessage(conversation),
		Summary:         summarize(conversation),
	}
}

func lastUserMessage(conversation []Message) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == "user" {
			return conversation[i].Content
		}
	}
	return ""
}

// summarize builds a short textual digest from the last three turns.
func summarize(conversation []Message) string {
	if len(conversation) <= 2 {
		return "Conversación inicial"
	}
	recent := conversation[len(conversation)-3:]
	var parts []string
	for _, msg := range recent {
		content := msg.Content
		if len(content) > 50 {
			content = firstRunes(content, 50)
		}
		switch msg.Role {
		case "user":
			parts = append(parts, "Usuario: "+content+"...")
		case "assistant":
			parts = append(parts, "Asistente: "+content+"...")
		}
	}
	return strings.Join(parts, " | ")
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
