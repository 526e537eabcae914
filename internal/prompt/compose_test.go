package prompt

import (
	"errors"
	"strings"
	"testing"
)

const testTemplate = "You are Kind. Be gentle.\n\nConversation History:\n{history}\n\nUser: {input}\nKind:"

func TestComposeSubstitutesPlaceholders(t *testing.T) {
	got, err := Compose(testTemplate, "User: hi\nKind: hello", "I feel anxious today")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	want := "You are Kind. Be gentle.\n\nConversation History:\nUser: hi\nKind: hello\n\nUser: I feel anxious today\nKind:"
	if got != want {
		t.Fatalf("Compose() = %q, want %q", got, want)
	}
}

func TestComposeInputPlaceholderIsNotExpanded(t *testing.T) {
	history := "User: earlier\nKind: reply"
	got, err := Compose(testTemplate, history, "{history}")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.HasSuffix(got, "User: {history}\nKind:") {
		t.Fatalf("user slot does not hold the literal token: %q", got)
	}
	if n := strings.Count(got, "You are Kind. Be gentle."); n != 1 {
		t.Fatalf("persona instructions appear %d times, want 1", n)
	}
	if n := strings.Count(got, history); n != 1 {
		t.Fatalf("history appears %d times, want 1", n)
	}
}

func TestComposeContextTokensAreNotExpanded(t *testing.T) {
	got, err := Compose(testTemplate, "User: {input}\nKind: ok", "next")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(got, "User: {input}\nKind: ok") {
		t.Fatalf("context was rewritten: %q", got)
	}
	if !strings.HasSuffix(got, "User: next\nKind:") {
		t.Fatalf("input slot = %q", got)
	}
}

func TestComposeKeepsUnknownBraces(t *testing.T) {
	got, err := Compose("{mood} {input} {", "", "x")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if got != "{mood} x {" {
		t.Fatalf("Compose() = %q", got)
	}
}

func TestComposeRejectsTemplateWithoutInput(t *testing.T) {
	_, err := Compose("History: {history}", "", "hello")
	if !errors.Is(err, ErrMalformedTemplate) {
		t.Fatalf("Compose() error = %v, want ErrMalformedTemplate", err)
	}
}
