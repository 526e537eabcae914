package policy

import (
	"regexp"
	"strings"
)

// RiskLevel grades how urgently a message needs a safety response.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskElevated RiskLevel = "elevated"
	RiskCrisis   RiskLevel = "crisis"
)

// RiskAssessment is attached to a turn. It never blocks the turn.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Signals []string  `json:"signals,omitempty"`
}

type riskSignal struct {
	name    string
	pattern *regexp.Regexp
}

var (
	crisisSignals = []riskSignal{
		{"suicidal_ideation", regexp.MustCompile(`(?i)\b(suicid\w*|kill(ing)? myself|end(ing)? (it all|my life)|take my (own )?life)\b`)},
		{"wish_to_die", regexp.MustCompile(`(?i)\b(want(ed)? to die|better off dead|no reason to (live|go on))\b`)},
		{"self_harm", regexp.MustCompile(`(?i)\b(self[- ]?harm\w*|hurt(ing)? myself|cut(ting)? myself)\b`)},
	}
	elevatedSignals = []riskSignal{
		{"hopelessness", regexp.MustCompile(`(?i)\b(hopeless|worthless|can'?t go on|nothing matters|give up on everything)\b`)},
		{"panic", regexp.MustCompile(`(?i)\b(panic attacks?|can'?t breathe)\b`)},
		{"isolation", regexp.MustCompile(`(?i)\b(completely alone|no one cares|nobody cares)\b`)},
	}
)

// AssessRisk scans a user message for crisis or distress language.
func AssessRisk(text string) RiskAssessment {
	in := strings.TrimSpace(text)
	if in == "" {
		return RiskAssessment{Level: RiskNone}
	}

	if hits := matchSignals(in, crisisSignals); len(hits) > 0 {
		return RiskAssessment{Level: RiskCrisis, Signals: append(hits, matchSignals(in, elevatedSignals)...)}
	}
	if hits := matchSignals(in, elevatedSignals); len(hits) > 0 {
		return RiskAssessment{Level: RiskElevated, Signals: hits}
	}
	return RiskAssessment{Level: RiskNone}
}

func matchSignals(text string, signals []riskSignal) []string {
	var hits []string
	for _, s := range signals {
		if s.pattern.MatchString(text) {
			hits = append(hits, s.name)
		}
	}
	return hits
}
