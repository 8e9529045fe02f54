// Package assemble implements a pure fold over a validated event sequence
// that produces a single InferenceResult.
package assemble

import (
	"encoding/json"
	"strings"

	"github.com/sidedotdev/inferencecore/event"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/sidedotdev/inferencecore/result"
	"github.com/sidedotdev/inferencecore/sdkerr"
	"github.com/sidedotdev/inferencecore/streamvalidate"
)

// EventOrError is one item of a provider-supplied lazy event sequence. An
// Err item aborts assembly immediately without attempting recovery.
type EventOrError struct {
	Event event.Event
	Err   error
}

// blockKind distinguishes the three kinds of content the assembler tracks
// while open: a sealed text run, a sealed thinking run, or a pending tool
// call awaiting argument fragments.
type blockKind int

const (
	blockText blockKind = iota
	blockThinking
	blockToolUse
)

type block struct {
	kind       blockKind
	text       strings.Builder // blockText / blockThinking
	toolID     string          // blockToolUse
	toolName   string          // blockToolUse
	toolArgs   strings.Builder // blockToolUse
}

// assembler owns its buffer and map; no shared mutation.
type assembler struct {
	validator streamvalidate.Validator

	providerID string
	blocks     []*block

	openTextIdx     int // index into blocks, or -1
	openThinkingIdx int // index into blocks, or -1

	toolIndexByID map[string]int // tool call id -> index into blocks

	stopReason *event.StopReason
	usage      *event.Usage

	ended bool
}

func newAssembler() *assembler {
	return &assembler{
		openTextIdx:     -1,
		openThinkingIdx: -1,
		toolIndexByID:   make(map[string]int),
	}
}

func (a *assembler) feed(e event.Event) error {
	if err := a.validator.Feed(e); err != nil {
		return err
	}

	switch e.Kind {
	case event.MessageStart:
		a.providerID = e.ProviderID

	case event.MessageDelta:
		a.sealThinking()
		if a.openTextIdx == -1 {
			a.blocks = append(a.blocks, &block{kind: blockText})
			a.openTextIdx = len(a.blocks) - 1
		}
		a.blocks[a.openTextIdx].text.WriteString(e.Content)

	case event.ThinkingDelta:
		a.sealText()
		if a.openThinkingIdx == -1 {
			a.blocks = append(a.blocks, &block{kind: blockThinking})
			a.openThinkingIdx = len(a.blocks) - 1
		}
		a.blocks[a.openThinkingIdx].text.WriteString(e.Content)

	case event.ToolCallStart:
		a.sealText()
		a.sealThinking()
		a.blocks = append(a.blocks, &block{kind: blockToolUse, toolID: e.ToolCallID, toolName: e.ToolCallName})
		a.toolIndexByID[e.ToolCallID] = len(a.blocks) - 1

	case event.ToolCallDelta:
		a.sealText()
		a.sealThinking()
		idx := a.toolIndexByID[e.ToolCallID]
		a.blocks[idx].toolArgs.WriteString(e.Delta)

	case event.MessageEnd:
		a.sealText()
		a.sealThinking()
		a.stopReason = e.StopReason
		a.usage = e.Usage
		a.ended = true
	}

	return nil
}

func (a *assembler) sealText()     { a.openTextIdx = -1 }
func (a *assembler) sealThinking() { a.openThinkingIdx = -1 }

func (a *assembler) finish() (*result.InferenceResult, error) {
	if err := a.validator.Finish(); err != nil {
		return nil, err
	}

	var content []request.InferenceContent
	toolUseCount := 0

	for _, b := range a.blocks {
		switch b.kind {
		case blockText:
			if b.text.Len() == 0 {
				continue // empty text block elided
			}
			content = append(content, request.Text(b.text.String()))

		case blockThinking:
			if b.text.Len() == 0 {
				continue // empty thinking block elided
			}
			content = append(content, request.Thinking(b.text.String()))

		case blockToolUse:
			toolUseCount++
			rawArgs := b.toolArgs.String()
			if rawArgs == "" {
				rawArgs = "{}" // no argument fragments arrived: treat as {}
			}
			var parsed any
			if err := json.Unmarshal([]byte(rawArgs), &parsed); err != nil {
				return nil, sdkerr.Wrap(sdkerr.KindDeserialization, "failed to parse tool call arguments for "+b.toolID, err)
			}
			content = append(content, request.ToolUse(b.toolID, b.toolName, parsed))
		}
	}

	if len(content) == 0 && toolUseCount == 0 {
		return nil, sdkerr.NewStreamInvariantViolation("empty assistant message")
	}

	return &result.InferenceResult{
		ProviderID: a.providerID,
		Content:    content,
		StopReason: a.stopReason,
		Usage:      a.usage,
	}, nil
}

// FromEvents assembles a complete, already-materialized event slice. This
// is the convenience path used by provider tests and by callers that
// already collected a full sequence (e.g. from validate_event_sequence
// fixtures).
func FromEvents(events []event.Event) (*result.InferenceResult, error) {
	a := newAssembler()
	for _, e := range events {
		if err := a.feed(e); err != nil {
			return nil, err
		}
	}
	return a.finish()
}

// FromStream assembles a lazily-produced sequence of events, aborting
// immediately on the first Err item without attempting recovery. This is
// the only suspension point: FromStream blocks only while awaiting the
// next channel item.
func FromStream(events <-chan EventOrError) (*result.InferenceResult, error) {
	a := newAssembler()
	for item := range events {
		if item.Err != nil {
			return nil, item.Err
		}
		if err := a.feed(item.Event); err != nil {
			return nil, err
		}
	}
	return a.finish()
}
