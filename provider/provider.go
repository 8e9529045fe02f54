// Package provider defines the InferenceProvider capability: the single
// interface every driver (provideropenai, provideranthropic) implements,
// plus a default Complete built from Stream+assemble. Go has no default
// interface methods, so the default lives on an embeddable Base instead.
package provider

import (
	"context"

	"github.com/sidedotdev/inferencecore/assemble"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/sidedotdev/inferencecore/result"
)

// InferenceProvider is object-safe: callers may hold it behind an
// interface value shared across goroutines.
type InferenceProvider interface {
	// Stream issues req and returns a channel of normalized events. The
	// channel is closed once the stream ends (successfully or not); the
	// caller drains it via assemble.FromStream or directly.
	Stream(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error)

	// Complete runs Stream to completion and folds the result via the
	// stream assembler. The default implementation on Base does exactly
	// this; adapters normally embed Base rather than reimplement it.
	Complete(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (*result.InferenceResult, error)

	// ProviderID is a stable identifier, e.g. "openai", "anthropic".
	ProviderID() string
}

// StreamFunc is the one method every adapter must actually supply.
type StreamFunc func(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error)

// Base supplies the default Complete and ProviderID so adapters only need
// to implement Stream. Embed Base and set ID/StreamFn.
type Base struct {
	ID       string
	StreamFn StreamFunc
}

func (b Base) Stream(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error) {
	return b.StreamFn(ctx, req, opts)
}

func (b Base) ProviderID() string { return b.ID }

// Complete calls Stream then folds the event channel with the stream
// assembler.
func (b Base) Complete(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (*result.InferenceResult, error) {
	ch, err := b.StreamFn(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	return assemble.FromStream(ch)
}

var _ InferenceProvider = Base{}
