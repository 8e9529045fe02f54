package provider

import (
	"context"
	"testing"

	"github.com/sidedotdev/inferencecore/assemble"
	"github.com/sidedotdev/inferencecore/event"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeStream(events ...event.Event) StreamFunc {
	return func(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error) {
		ch := make(chan assemble.EventOrError, len(events))
		for _, e := range events {
			ch <- assemble.EventOrError{Event: e}
		}
		close(ch)
		return ch, nil
	}
}

func TestBase_ProviderID(t *testing.T) {
	b := Base{ID: "openai"}
	assert.Equal(t, "openai", b.ProviderID())
}

func TestBase_Complete_FoldsStreamViaAssembler(t *testing.T) {
	b := Base{
		ID: "openai",
		StreamFn: fakeStream(
			event.Event{Kind: event.MessageStart, ProviderID: "openai"},
			event.Event{Kind: event.MessageDelta, Content: "hi"},
			event.Event{Kind: event.MessageEnd, StopReason: &event.StopReason{Kind: event.EndTurn}},
		),
	}

	req, err := request.NewRequestBuilder("gpt-5").
		AddMessage(request.InferenceMessage{Role: request.RoleUser, Content: []request.InferenceContent{request.Text("hello")}}).
		Build()
	require.NoError(t, err)

	res, err := b.Complete(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text())
}

func TestBase_Complete_PropagatesStreamError(t *testing.T) {
	b := Base{
		ID: "openai",
		StreamFn: func(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error) {
			return nil, assertErr("stream setup failed")
		},
	}

	req, err := request.NewRequestBuilder("gpt-5").
		AddMessage(request.InferenceMessage{Role: request.RoleUser, Content: []request.InferenceContent{request.Text("hello")}}).
		Build()
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), req, nil)
	require.Error(t, err)
	assert.Equal(t, "stream setup failed", err.Error())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
