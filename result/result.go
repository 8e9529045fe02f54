// Package result defines InferenceResult, the final assembled completion
// produced exactly once per stream by the stream assembler.
package result

import (
	"strings"

	"github.com/sidedotdev/inferencecore/event"
	"github.com/sidedotdev/inferencecore/request"
)

// InferenceResult is the final assembled completion. Content never
// contains an empty Text or Thinking block.
type InferenceResult struct {
	ProviderID string
	Content    []request.InferenceContent
	StopReason *event.StopReason
	Usage      *event.Usage
}

// Text returns the concatenation of all Text blocks.
func (r InferenceResult) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Kind == request.ContentText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
