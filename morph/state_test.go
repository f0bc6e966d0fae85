package morph

import (
	"strings"
	"testing"
)

func TestSnapshotCopiesHistory(t *testing.T) {
	conversation := []Message{
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "buenas"},
		{Role: "user", Content: "quiero comprar algo"},
	}
	snap := TakeSnapshot(conversation, "general")

	if len(snap.History) != len(conversation) {
		t.Fatalf("history length changed: %d vs %d", len(snap.History), len(conversation))
	}
	if snap.CurrentMorph != "general" {
		t.Fatalf("current morph lost: %q", snap.CurrentMorph)
	}
	if snap.LastUserMessage != "quiero comprar algo" {
		t.Fatalf("unexpected last user message: %q", snap.LastUserMessage)
	}

	// Mutating the source must not bleed into the snapshot.
	conversation[0].Content = "mutated"
	if snap.History[0].Content != "hola" {
		t.Fatalf("snapshot shares storage with the source conversation")
	}
}

func TestSnapshotSummaryInitialConversation(t *testing.T) {
	for _, conv := range [][]Message{
		nil,
		{{Role: "user", Content: "hola"}},
		{{Role: "user", Content: "hola"}, {Role: "assistant", Content: "buenas"}},
	} {
		snap := TakeSnapshot(conv, "general")
		if snap.Summary != "Conversación inicial" {
			t.Fatalf("expected initial summary for %d messages, got %q", len(conv), snap.Summary)
		}
	}
}

func TestSnapshotSummaryUsesLastThreeTurns(t *testing.T) {
	conversation := []Message{
		{Role: "user", Content: "antiguo"},
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "buenas"},
		{Role: "user", Content: "quiero comprar"},
	}
	snap := TakeSnapshot(conversation, "general")
	if strings.Contains(snap.Summary, "antiguo") {
		t.Fatalf("summary includes messages outside the last three: %q", snap.Summary)
	}
	want := "Usuario: hola... | Asistente: buenas... | Usuario: quiero comprar..."
	if snap.Summary != want {
		t.Fatalf("summary mismatch:\n got %q\nwant %q", snap.Summary, want)
	}
}

func TestSnapshotSummaryTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("á", 80)
	conversation := []Message{
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "buenas"},
		{Role: "user", Content: long},
	}
	snap := TakeSnapshot(conversation, "general")
	if strings.Contains(snap.Summary, long) {
		t.Fatalf("long message not truncated")
	}
	if !strings.Contains(snap.Summary, strings.Repeat("á", 50)+"...") {
		t.Fatalf("expected 50-rune prefix in summary: %q", snap.Summary)
	}
}

func TestLastUserMessageSkipsAssistantTurns(t *testing.T) {
	conversation := []Message{
		{Role: "user", Content: "primera"},
		{Role: "assistant", Content: "respuesta"},
	}
	if got := lastUserMessage(conversation); got != "primera" {
		t.Fatalf("expected last user message %q, got %q", "primera", got)
	}
	if got := lastUserMessage(nil); got != "" {
		t.Fatalf("expected empty for no messages, got %q", got)
	}
}
