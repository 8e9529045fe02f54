// Package event defines the unified streaming event model shared by every
// provider adapter. The variant set is closed: adding a kind is a breaking
// change, tracked the way the rest of the normalization core tracks breaking
// changes (a new Kind constant plus a migration note in DESIGN.md).
package event

// Kind identifies which variant of Event is populated. Only the fields
// documented next to each Kind are meaningful; the others are zero.
type Kind string

const (
	// MessageStart carries ProviderID. Emitted exactly once at the logical
	// start of the assistant message.
	MessageStart Kind = "message_start"

	// MessageDelta carries Content, a text increment.
	MessageDelta Kind = "message_delta"

	// ThinkingDelta carries Content, a reasoning increment.
	ThinkingDelta Kind = "thinking_delta"

	// ToolCallStart carries ToolCallID and ToolCallName.
	ToolCallStart Kind = "tool_call_start"

	// ToolCallDelta carries ToolCallID and Delta, an argument-JSON fragment.
	ToolCallDelta Kind = "tool_call_delta"

	// MessageEnd carries StopReason and Usage, both optional.
	MessageEnd Kind = "message_end"
)

// StopReasonKind enumerates the closed set of normalized stop reasons.
type StopReasonKind string

const (
	EndTurn      StopReasonKind = "end_turn"
	MaxTokens    StopReasonKind = "max_tokens"
	StopSequence StopReasonKind = "stop_sequence"
	ToolUse      StopReasonKind = "tool_use"
	Other        StopReasonKind = "other"
)

// StopReason is a closed sum; Raw is only meaningful when Kind == Other,
// and is preserved verbatim so a caller can branch on an unmapped reason
// without losing information (see DESIGN.md).
type StopReason struct {
	Kind StopReasonKind
	Raw  string
}

func (s StopReason) String() string {
	if s.Kind == Other {
		return s.Raw
	}
	return string(s.Kind)
}

// NormalizeStopReason maps a provider's raw stop/finish reason string onto
// the closed StopReason set.
func NormalizeStopReason(raw string) StopReason {
	switch raw {
	case "end_turn", "stop":
		return StopReason{Kind: EndTurn}
	case "max_tokens", "length":
		return StopReason{Kind: MaxTokens}
	case "stop_sequence":
		return StopReason{Kind: StopSequence}
	case "tool_use", "tool_calls":
		return StopReason{Kind: ToolUse}
	default:
		return StopReason{Kind: Other, Raw: raw}
	}
}

// Usage reports token accounting, surfaced only on MessageEnd.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  *int
}

// Event is the closed tagged union of normalized streaming events. Events
// are pure data and cheaply cloneable (no pointers into provider-owned
// buffers are retained by any field here).
type Event struct {
	Kind Kind

	// MessageStart
	ProviderID string

	// MessageDelta / ThinkingDelta
	Content string

	// ToolCallStart / ToolCallDelta
	ToolCallID   string
	ToolCallName string // ToolCallStart only
	Delta        string // ToolCallDelta only

	// MessageEnd
	StopReason *StopReason
	Usage      *Usage
}
