package policy

import (
	"slices"
	"testing"
)

func TestAssessRisk(t *testing.T) {
	cases := []struct {
		text   string
		level  RiskLevel
		signal string
	}{
		{"", RiskNone, ""},
		{"I feel anxious today", RiskNone, ""},
		{"Exams make me feel hopeless", RiskElevated, "hopelessness"},
		{"I had a panic attack on the bus", RiskElevated, "panic"},
		{"Sometimes I think about killing myself", RiskCrisis, "suicidal_ideation"},
		{"I just want to die", RiskCrisis, "wish_to_die"},
		{"I've been cutting myself again", RiskCrisis, "self_harm"},
	}
	for _, tc := range cases {
		got := AssessRisk(tc.text)
		if got.Level != tc.level {
			t.Fatalf("AssessRisk(%q).Level = %q, want %q", tc.text, got.Level, tc.level)
		}
		if tc.signal != "" && !slices.Contains(got.Signals, tc.signal) {
			t.Fatalf("AssessRisk(%q).Signals = %v, want %q", tc.text, got.Signals, tc.signal)
		}
	}
}

func TestAssessRiskCrisisKeepsElevatedSignals(t *testing.T) {
	got := AssessRisk("I feel hopeless and I want to die")
	if got.Level != RiskCrisis {
		t.Fatalf("Level = %q, want crisis", got.Level)
	}
	if !slices.Contains(got.Signals, "hopelessness") || !slices.Contains(got.Signals, "wish_to_die") {
		t.Fatalf("Signals = %v", got.Signals)
	}
}
