package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageTurn(t *testing.T) {
	raw := []byte(`{"type":"client_turn","session_id":"s1","persona_id":"coach","text":"I feel anxious today"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	turn, ok := msg.(ClientTurn)
	if !ok {
		t.Fatalf("message type = %T, want ClientTurn", msg)
	}
	if turn.SessionID != "s1" || turn.PersonaID != "coach" || turn.Text != "I feel anxious today" {
		t.Fatalf("unexpected client turn: %+v", turn)
	}
}

func TestParseClientMessageRejectsEmptyText(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_turn","session_id":"s1","text":"   "}`)); err == nil {
		t.Fatalf("ParseClientMessage() error = nil, want invalid client_turn")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("ParseClientMessage() error = nil, want invalid envelope")
	}
}
