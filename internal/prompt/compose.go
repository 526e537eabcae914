// Package prompt assembles the final model prompt from a persona template,
// conversation context and the new user input.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

const (
	HistoryPlaceholder = "{history}"
	InputPlaceholder   = "{input}"
)

// ErrMalformedTemplate is returned for templates that cannot carry user input.
var ErrMalformedTemplate = errors.New("malformed prompt template")

// Compose fills the placeholders of a trusted template. The template is
// scanned once; substituted text is never rescanned, so context or input that
// contains placeholder tokens is copied through verbatim.
func Compose(template, contextText, userInput string) (string, error) {
	if !strings.Contains(template, InputPlaceholder) {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedTemplate, InputPlaceholder)
	}
	r := strings.NewReplacer(
		HistoryPlaceholder, contextText,
		InputPlaceholder, userInput,
	)
	return r.Replace(template), nil
}
