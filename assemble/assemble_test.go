package assemble

import (
	"testing"

	"github.com/sidedotdev/inferencecore/event"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/sidedotdev/inferencecore/sdkerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usage(in, out int) *event.Usage {
	return &event.Usage{InputTokens: in, OutputTokens: out}
}

func stop(kind event.StopReasonKind) *event.StopReason {
	return &event.StopReason{Kind: kind}
}

// Boundary scenario 1: happy text stream.
func TestFromEvents_HappyTextStream(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "openai"},
		{Kind: event.MessageDelta, Content: "Hel"},
		{Kind: event.MessageDelta, Content: "lo"},
		{Kind: event.MessageEnd, StopReason: stop(event.EndTurn), Usage: usage(5, 2)},
	}

	res, err := FromEvents(events)
	require.NoError(t, err)

	require.Len(t, res.Content, 1)
	assert.Equal(t, request.ContentText, res.Content[0].Kind)
	assert.Equal(t, "Hello", res.Content[0].Text)
	assert.Equal(t, "Hello", res.Text())
	require.NotNil(t, res.StopReason)
	assert.Equal(t, event.EndTurn, res.StopReason.Kind)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 5, res.Usage.InputTokens)
	assert.Equal(t, 2, res.Usage.OutputTokens)
}

// Boundary scenario 2: interleaved tool call.
func TestFromEvents_InterleavedToolCall(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "anthropic"},
		{Kind: event.MessageDelta, Content: "Let me check. "},
		{Kind: event.ToolCallStart, ToolCallID: "t1", ToolCallName: "get_weather"},
		{Kind: event.ToolCallDelta, ToolCallID: "t1", Delta: `{"city":`},
		{Kind: event.ToolCallDelta, ToolCallID: "t1", Delta: `"NYC"}`},
		{Kind: event.MessageEnd, StopReason: stop(event.ToolUse)},
	}

	res, err := FromEvents(events)
	require.NoError(t, err)

	require.Len(t, res.Content, 2)
	assert.Equal(t, request.ContentText, res.Content[0].Kind)
	assert.Equal(t, "Let me check. ", res.Content[0].Text)

	assert.Equal(t, request.ContentToolUse, res.Content[1].Kind)
	assert.Equal(t, "t1", res.Content[1].ToolUseID)
	assert.Equal(t, "get_weather", res.Content[1].ToolUseName)
	assert.Equal(t, map[string]any{"city": "NYC"}, res.Content[1].ToolUseArguments)

	require.NotNil(t, res.StopReason)
	assert.Equal(t, event.ToolUse, res.StopReason.Kind)
}

// Boundary scenario 3: malformed tool JSON.
func TestFromEvents_MalformedToolJSON(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "anthropic"},
		{Kind: event.MessageDelta, Content: "Let me check. "},
		{Kind: event.ToolCallStart, ToolCallID: "t1", ToolCallName: "get_weather"},
		{Kind: event.ToolCallDelta, ToolCallID: "t1", Delta: `{"city":`},
		{Kind: event.ToolCallDelta, ToolCallID: "t1", Delta: `"NYC`},
		{Kind: event.MessageEnd, StopReason: stop(event.ToolUse)},
	}

	_, err := FromEvents(events)
	require.Error(t, err)

	var sdkErr *sdkerr.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, sdkerr.KindDeserialization, sdkErr.Kind)
}

// Boundary scenario 4: duplicate MessageStart.
func TestFromEvents_DuplicateMessageStart(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "openai"},
		{Kind: event.MessageStart, ProviderID: "openai"},
	}

	_, err := FromEvents(events)
	require.Error(t, err)
	assertStreamInvariant(t, err, "duplicate MessageStart")
}

// Boundary scenario 5: stream ends without MessageEnd.
func TestFromEvents_EndsWithoutMessageEnd(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "openai"},
		{Kind: event.MessageDelta, Content: "x"},
	}

	_, err := FromEvents(events)
	require.Error(t, err)
	assertStreamInvariant(t, err, "stream ended without MessageEnd")
}

func TestFromEvents_EmptyAssistantMessageIsAViolation(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "openai"},
		{Kind: event.MessageEnd, StopReason: stop(event.EndTurn)},
	}

	_, err := FromEvents(events)
	require.Error(t, err)
	assertStreamInvariant(t, err, "empty assistant message")
}

func TestFromEvents_EmptyToolArgsDefaultToEmptyObject(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "openai"},
		{Kind: event.ToolCallStart, ToolCallID: "t1", ToolCallName: "no_args"},
		{Kind: event.MessageEnd, StopReason: stop(event.ToolUse)},
	}

	res, err := FromEvents(events)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	assert.Equal(t, map[string]any{}, res.Content[0].ToolUseArguments)
}

func TestFromEvents_TextSealedByInterveningToolCall(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "openai"},
		{Kind: event.MessageDelta, Content: "before "},
		{Kind: event.ToolCallStart, ToolCallID: "t1", ToolCallName: "f"},
		{Kind: event.ToolCallDelta, ToolCallID: "t1", Delta: "{}"},
		{Kind: event.MessageDelta, Content: "after"},
		{Kind: event.MessageEnd, StopReason: stop(event.EndTurn)},
	}

	res, err := FromEvents(events)
	require.NoError(t, err)
	require.Len(t, res.Content, 3)
	assert.Equal(t, "before ", res.Content[0].Text)
	assert.Equal(t, request.ContentToolUse, res.Content[1].Kind)
	assert.Equal(t, "after", res.Content[2].Text)
}

func TestFromEvents_ThinkingAndTextInterleaveIndependently(t *testing.T) {
	events := []event.Event{
		{Kind: event.MessageStart, ProviderID: "anthropic"},
		{Kind: event.ThinkingDelta, Content: "pondering "},
		{Kind: event.MessageDelta, Content: "answer "},
		{Kind: event.ThinkingDelta, Content: "more thought"},
		{Kind: event.MessageEnd, StopReason: stop(event.EndTurn)},
	}

	res, err := FromEvents(events)
	require.NoError(t, err)
	require.Len(t, res.Content, 3)
	assert.Equal(t, request.ContentThinking, res.Content[0].Kind)
	assert.Equal(t, "pondering ", res.Content[0].Text)
	assert.Equal(t, request.ContentText, res.Content[1].Kind)
	assert.Equal(t, "answer ", res.Content[1].Text)
	assert.Equal(t, request.ContentThinking, res.Content[2].Kind)
	assert.Equal(t, "more thought", res.Content[2].Text)
}

func TestFromStream_AbortsOnErrItem(t *testing.T) {
	ch := make(chan EventOrError, 4)
	ch <- EventOrError{Event: event.Event{Kind: event.MessageStart, ProviderID: "openai"}}
	ch <- EventOrError{Event: event.Event{Kind: event.MessageDelta, Content: "x"}}
	ch <- EventOrError{Err: sdkerr.New(sdkerr.KindHTTP, "connection dropped")}
	close(ch)

	_, err := FromStream(ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection dropped")
}

func TestFromStream_HappyPath(t *testing.T) {
	ch := make(chan EventOrError, 4)
	ch <- EventOrError{Event: event.Event{Kind: event.MessageStart, ProviderID: "openai"}}
	ch <- EventOrError{Event: event.Event{Kind: event.MessageDelta, Content: "hi"}}
	ch <- EventOrError{Event: event.Event{Kind: event.MessageEnd, StopReason: stop(event.EndTurn)}}
	close(ch)

	res, err := FromStream(ch)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text())
}

func assertStreamInvariant(t *testing.T, err error, substr string) {
	t.Helper()
	var sdkErr *sdkerr.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, sdkerr.KindStreamInvariant, sdkErr.Kind)
	assert.Contains(t, sdkErr.Message, substr)
}
