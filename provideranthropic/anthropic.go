// Package provideranthropic adapts the Anthropic Messages streaming API to
// the normalized InferenceProvider capability, grounded on
// llm2/anthropic_provider.go's wire-format translation.
package provideranthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"github.com/sidedotdev/inferencecore/assemble"
	"github.com/sidedotdev/inferencecore/event"
	"github.com/sidedotdev/inferencecore/internal/corelog"
	"github.com/sidedotdev/inferencecore/provider"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/sidedotdev/inferencecore/retrypolicy"
	"github.com/sidedotdev/inferencecore/sdkerr"
)

const driverName = "anthropic"
const defaultMaxTokens = 4096

// New constructs an InferenceProvider backed by the official
// anthropic-sdk-go Messages client. cfg carries the already-composed
// headers; the beta header opt-in (cfg.AnthropicBetaOptIn) is passed
// through verbatim the way llm2/anthropic_provider.go's OAuth branch sets
// the anthropic-beta header.
func New(cfg request.ClientConfig, apiKey string) (provider.InferenceProvider, error) {
	if apiKey == "" {
		return nil, sdkerr.New(sdkerr.KindConfig, "anthropic: api key must not be empty")
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.AnthropicBetaOptIn {
		if beta, ok := cfg.Headers["anthropic-beta"]; ok {
			clientOpts = append(clientOpts, option.WithHeader("anthropic-beta", beta))
		}
	}
	for k, v := range cfg.ExtraHeaders {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	client := anthropic.NewClient(clientOpts...)

	base := provider.Base{ID: driverName}
	rp := cfg.RetryPolicy
	base.StreamFn = func(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error) {
		return streamMessages(ctx, client, rp, req, opts)
	}
	return base, nil
}

func streamMessages(ctx context.Context, client anthropic.Client, rp retrypolicy.RetryPolicy, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	if opts != nil {
		if n := opts.MaxRetries(); n != nil {
			rp.MaxRetries = *n
		}
	}

	stream, firstErr := connectWithRetry(ctx, client, params, rp)
	if firstErr != nil {
		return nil, firstErr
	}

	ch := make(chan assemble.EventOrError)
	go translateMessageStream(stream, ch)
	return ch, nil
}

// connectWithRetry mirrors provideropenai's connectWithRetry: retries are
// scoped to establishing the stream, before any content-block event has
// been delivered. Once streaming is underway a failure is terminal.
func connectWithRetry(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams, rp retrypolicy.RetryPolicy) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	logger := corelog.WithDriver(driverName)
	correlationID := uuid.NewString()
	start := time.Now()
	attempt := 1
	for {
		stream := client.Messages.NewStreaming(ctx, params)
		if stream.Next() {
			return stream, nil
		}
		if err := stream.Err(); err != nil {
			wrapped := wrapAnthropicError(err)
			outcome, wait := retrypolicy.Decide(rp, retrypolicy.TimeoutPolicy{}, attempt, time.Since(start), wrapped)
			corelog.LogRetryDecision(logger, correlationID, attempt, outcomeLabel(outcome), wait)
			if outcome == retrypolicy.OutcomeRetry {
				sleep(ctx, wait)
				attempt++
				continue
			}
			return nil, wrapped
		}
		return stream, nil
	}
}

func outcomeLabel(o retrypolicy.Outcome) string {
	switch o {
	case retrypolicy.OutcomeRetry:
		return "retry"
	case retrypolicy.OutcomeExhausted:
		return "exhausted"
	case retrypolicy.OutcomeAbandonTimeout:
		return "abandon_timeout"
	default:
		return "surface"
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// blockKind tracks what normalized delta a content block index should
// produce, since InputJSONDelta/TextDelta/ThinkingDelta are disambiguated
// by which block they belong to, not by the delta type alone.
type blockKind int

const (
	blockText blockKind = iota
	blockThinking
	blockTool
)

// translateMessageStream folds Anthropic's content-block event stream into
// the normalized event sequence: MessageStart once, MessageDelta/
// ThinkingDelta/ToolCallStart/ToolCallDelta per content-block event,
// MessageEnd exactly once carrying usage and the normalized stop reason.
func translateMessageStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], ch chan<- assemble.EventOrError) {
	defer close(ch)

	logger := corelog.WithDriver(driverName)
	corelog.LogStreamLifecycle(logger, "start", "")
	ch <- assemble.EventOrError{Event: event.Event{Kind: event.MessageStart, ProviderID: driverName}}

	var finalMessage anthropic.Message
	kindByIndex := make(map[int64]blockKind)
	toolIDByIndex := make(map[int64]string)

	for {
		evt := stream.Current()
		if err := finalMessage.Accumulate(evt); err != nil {
			ch <- assemble.EventOrError{Err: sdkerr.Wrap(sdkerr.KindDeserialization, "failed to accumulate anthropic message", err)}
			return
		}

		switch e := evt.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			switch e.ContentBlock.Type {
			case "text":
				kindByIndex[e.Index] = blockText
			case "thinking":
				kindByIndex[e.Index] = blockThinking
			case "tool_use":
				kindByIndex[e.Index] = blockTool
				toolIDByIndex[e.Index] = e.ContentBlock.ID
				ch <- assemble.EventOrError{Event: event.Event{
					Kind:         event.ToolCallStart,
					ToolCallID:   e.ContentBlock.ID,
					ToolCallName: e.ContentBlock.Name,
				}}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := e.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if kindByIndex[e.Index] == blockText {
					ch <- assemble.EventOrError{Event: event.Event{Kind: event.MessageDelta, Content: d.Text}}
				}
			case anthropic.ThinkingDelta:
				ch <- assemble.EventOrError{Event: event.Event{Kind: event.ThinkingDelta, Content: d.Thinking}}
			case anthropic.InputJSONDelta:
				if id, ok := toolIDByIndex[e.Index]; ok {
					ch <- assemble.EventOrError{Event: event.Event{Kind: event.ToolCallDelta, ToolCallID: id, Delta: d.PartialJSON}}
				}
			// SignatureDelta carries the opaque thinking-block signature; the
			// normalized event model has no slot for it (round-tripping
			// extended thinking isn't part of the closed content set), so it
			// is dropped here same as it's dropped in the request side's
			// ContentThinking conversion.
			default:
			}

		case anthropic.ContentBlockStopEvent:
			// No normalized per-block-stop event exists; MessageEnd closes
			// every block at once.
		}

		if !stream.Next() {
			break
		}
	}

	if err := stream.Err(); err != nil {
		ch <- assemble.EventOrError{Err: wrapAnthropicError(err)}
		return
	}

	// Anthropic reports non-cached prompt tokens as InputTokens; the full
	// prompt token count is the sum of all three fields.
	usage := event.Usage{
		InputTokens:  int(finalMessage.Usage.InputTokens) + int(finalMessage.Usage.CacheReadInputTokens) + int(finalMessage.Usage.CacheCreationInputTokens),
		OutputTokens: int(finalMessage.Usage.OutputTokens),
	}
	stopReason := event.NormalizeStopReason(string(finalMessage.StopReason))
	corelog.LogStreamLifecycle(logger, "end", stopReason.String())
	ch <- assemble.EventOrError{Event: event.Event{Kind: event.MessageEnd, StopReason: &stopReason, Usage: &usage}}
}

func buildParams(req request.InferenceRequest) (anthropic.MessageNewParams, error) {
	maxTokens := defaultMaxTokens
	if mt := req.MaxTokens(); mt != nil {
		maxTokens = *mt
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model()),
		MaxTokens: int64(maxTokens),
	}

	if sys, ok := req.System(); ok && sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if temp := req.Temperature(); temp != nil {
		params.Temperature = anthropic.Opt(*temp)
	}
	if topP := req.TopP(); topP != nil {
		params.TopP = anthropic.Opt(*topP)
	}

	messages, err := toAnthropicMessages(req.Messages())
	if err != nil {
		return params, err
	}
	params.Messages = messages

	if tools := req.Tools(); len(tools) > 0 {
		converted, err := toAnthropicTools(tools)
		if err != nil {
			return params, err
		}
		params.Tools = converted
	}

	return params, nil
}

func roleToAnthropicParam(role request.Role) anthropic.MessageParamRole {
	if role == request.RoleAssistant {
		return anthropic.MessageParamRoleAssistant
	}
	// Anthropic has no system or tool role: system prompts travel in
	// params.System, and tool results are user-role content blocks.
	return anthropic.MessageParamRoleUser
}

func toAnthropicMessages(messages []request.InferenceMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var currentRole anthropic.MessageParamRole
	var currentBlocks []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(currentBlocks) == 0 {
			return
		}
		if currentRole == anthropic.MessageParamRoleUser {
			result = append(result, anthropic.NewUserMessage(currentBlocks...))
		} else {
			result = append(result, anthropic.NewAssistantMessage(currentBlocks...))
		}
		currentBlocks = nil
	}

	for _, msg := range messages {
		role := roleToAnthropicParam(msg.Role)
		if role != currentRole && len(currentBlocks) > 0 {
			flush()
		}
		currentRole = role

		for _, content := range msg.Content {
			block, err := contentToAnthropicParam(content, msg)
			if err != nil {
				return nil, err
			}
			currentBlocks = append(currentBlocks, block)
		}
	}
	flush()
	return result, nil
}

func contentToAnthropicParam(c request.InferenceContent, msg request.InferenceMessage) (anthropic.ContentBlockParamUnion, error) {
	switch c.Kind {
	case request.ContentText:
		block := anthropic.NewTextBlock(c.Text)
		applyCacheControl(&block, c.CacheControl)
		return block, nil

	case request.ContentThinking:
		// Extended-thinking blocks require their original signature to be
		// echoed back verbatim; the normalized content model doesn't carry
		// one, so thinking is not round-tripped as a thinking block: its
		// text is sent as a plain text block instead (the Chat Completions
		// adapter omits thinking content altogether).
		block := anthropic.NewTextBlock(c.Text)
		applyCacheControl(&block, c.CacheControl)
		return block, nil

	case request.ContentToolUse:
		if msg.Role != request.RoleAssistant {
			return anthropic.ContentBlockParamUnion{}, sdkerr.NewInvalidRequest("tool_use content only allowed in assistant messages")
		}
		input, err := toolArgsToMap(c.ToolUseArguments)
		if err != nil {
			return anthropic.ContentBlockParamUnion{}, sdkerr.Wrap(sdkerr.KindSerialization, "failed to convert tool_use arguments", err)
		}
		block := anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    c.ToolUseID,
				Name:  c.ToolUseName,
				Input: input,
			},
		}
		if c.CacheControl != "" {
			block.OfToolUse.CacheControl = anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
		}
		return block, nil

	case request.ContentToolResult:
		if msg.Role != request.RoleTool {
			return anthropic.ContentBlockParamUnion{}, sdkerr.NewInvalidRequest("tool_result content only allowed in tool-role messages")
		}
		block := anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: c.ToolCallID,
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: c.ResultText}},
				},
			},
		}
		if c.CacheControl != "" {
			block.OfToolResult.CacheControl = anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
		}
		return block, nil

	case request.ContentImage:
		return imageToAnthropicParam(c)

	default:
		return anthropic.ContentBlockParamUnion{}, sdkerr.NewInvalidRequest("unsupported content kind: " + string(c.Kind))
	}
}

func applyCacheControl(block *anthropic.ContentBlockParamUnion, cacheControl string) {
	if cacheControl == "" || block.OfText == nil {
		return
	}
	block.OfText.CacheControl = anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
}

func imageToAnthropicParam(c request.InferenceContent) (anthropic.ContentBlockParamUnion, error) {
	if c.ImageURL != "" {
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: c.ImageURL, Type: "url"}), nil
	}
	if len(c.ImageData) == 0 {
		return anthropic.ContentBlockParamUnion{}, sdkerr.NewInvalidRequest("image content missing both URL and inline data")
	}
	mime := c.ImageMimeType
	if mime == "" {
		mime = "image/png"
	}
	encoded := base64.StdEncoding.EncodeToString(c.ImageData)
	return anthropic.NewImageBlockBase64(mime, encoded), nil
}

func toolArgsToMap(args any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	if m, ok := args.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"invalid_json_stringified": string(raw)}, nil
	}
	return m, nil
}

func toAnthropicTools(tools []request.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		props, required, err := schemaToProperties(tool.Parameters)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindSerialization, "failed to convert schema for tool "+tool.Name, err)
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.Opt(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       constant.Object("object"),
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out, nil
}

// schemaToProperties flattens a jsonschema.Schema into the bare
// properties/required shape anthropic.ToolInputSchemaParam expects,
// round-tripping through encoding/json the same way provideropenai's
// schemaToMap does.
func schemaToProperties(schema *jsonschema.Schema) (any, []string, error) {
	if schema == nil {
		return map[string]any{}, nil, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, err
	}
	var decoded struct {
		Properties any      `json:"properties"`
		Required   []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, nil, err
	}
	if decoded.Properties == nil {
		decoded.Properties = map[string]any{}
	}
	return decoded.Properties, decoded.Required, nil
}

// wrapAnthropicError classifies an error from the anthropic-sdk-go client
// into the closed taxonomy. There's no teacher precedent for this specific
// wrapper (llm2/anthropic_provider.go propagates stream.Err() unwrapped) so
// it's modeled on provideropenai's wrapOpenAIError. Unlike *openai.Error,
// *anthropic.Error has no separate Message or Type field: the ApiError
// carries its StatusCode, apiErr.Error() as the message, and no provider
// code.
func wrapAnthropicError(err error) *sdkerr.SdkError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return sdkerr.NewAPIError(apiErr.StatusCode, apiErr.Error(), "")
	}
	return sdkerr.Wrap(sdkerr.KindHTTP, "anthropic transport error", err)
}
