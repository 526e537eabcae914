package memory

import (
	"context"
	"strings"
)

// Invoker is the single-string model call the summarizer needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// ModelSummarizer asks the model to extend a running summary with one turn.
type ModelSummarizer struct {
	model Invoker
}

func NewModelSummarizer(model Invoker) *ModelSummarizer {
	return &ModelSummarizer{model: model}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, priorSummary string, turn Turn) (string, error) {
	return s.model.Invoke(ctx, summaryPrompt(priorSummary, turn))
}

func summaryPrompt(prior string, turn Turn) string {
	if strings.TrimSpace(prior) == "" {
		prior = NoPriorConversation
	}
	speaker := turn.PersonaName
	if speaker == "" {
		speaker = "AI"
	}

	var b strings.Builder
	b.WriteString("Progressively summarize the lines of conversation provided, adding onto the previous summary and returning a new summary. ")
	b.WriteString("Keep the user's feelings, concerns and any coping steps discussed. Write in the third person and stay under 200 words.\n\n")
	b.WriteString("Current summary:\n")
	b.WriteString(prior)
	b.WriteString("\n\nNew lines of conversation:\nUser: ")
	b.WriteString(turn.UserInput)
	b.WriteString("\n")
	b.WriteString(speaker)
	b.WriteString(": ")
	b.WriteString(turn.AIResponse)
	b.WriteString("\n\nNew summary:")
	return b.String()
}
