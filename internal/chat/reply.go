package chat

import (
	"regexp"
	"strings"
)

var (
	continuationRe = regexp.MustCompile(`(?im)^[ \t]*(?:user|human)[ \t]*:`)
	genericLabels  = []string{"assistant", "ai"}
)

// cleanReply strips transcript artifacts that completion-style models emit:
// a leading speaker label ("Compassionate Listener: ...") and an invented
// next user line. A reply that is nothing but artifacts comes back empty.
func cleanReply(reply, personaName string) string {
	out := strings.TrimSpace(reply)
	for i := 0; i < 4; i++ {
		next := stripSpeakerLabel(out, personaName)
		if next == out {
			break
		}
		out = next
	}
	if loc := continuationRe.FindStringIndex(out); loc != nil {
		out = strings.TrimSpace(out[:loc[0]])
	}
	return out
}

func stripSpeakerLabel(text, personaName string) string {
	labels := genericLabels
	if name := strings.TrimSpace(personaName); name != "" {
		labels = append([]string{name}, genericLabels...)
	}
	for _, label := range labels {
		if len(text) <= len(label) || !strings.EqualFold(text[:len(label)], label) {
			continue
		}
		rest := strings.TrimLeft(text[len(label):], " \t")
		if after, ok := strings.CutPrefix(rest, ":"); ok {
			return strings.TrimSpace(after)
		}
	}
	return text
}
