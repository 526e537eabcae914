package chat

import "testing"

func TestCleanReply(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "That sounds hard.", "That sounds hard."},
		{"persona label", "Compassionate Listener: That sounds hard.", "That sounds hard."},
		{"label case and spacing", "  compassionate listener :  That sounds hard.", "That sounds hard."},
		{"generic label", "AI: Take a breath.", "Take a breath."},
		{"invented user turn", "Take a breath.\nUser: thanks\nCompassionate Listener: anytime", "Take a breath."},
		{"label inside sentence kept", "Say this: you matter.", "Say this: you matter."},
		{"word that starts like a label", "Aim for one small step.", "Aim for one small step."},
		{"only artifacts", "User: hello", ""},
	}
	for _, tc := range cases {
		if got := cleanReply(tc.reply, "Compassionate Listener"); got != tc.want {
			t.Fatalf("%s: cleanReply(%q) = %q, want %q", tc.name, tc.reply, got, tc.want)
		}
	}
}
