// Package provideropenai adapts the OpenAI Chat Completions streaming API
// to the normalized InferenceProvider capability, grounded on
// llm2/openai_provider.go's wire-format translation.
package provideropenai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/shared"

	"github.com/sidedotdev/inferencecore/assemble"
	"github.com/sidedotdev/inferencecore/event"
	"github.com/sidedotdev/inferencecore/internal/corelog"
	"github.com/sidedotdev/inferencecore/provider"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/sidedotdev/inferencecore/retrypolicy"
	"github.com/sidedotdev/inferencecore/sdkerr"
)

const driverName = "openai"

// New constructs an InferenceProvider backed by the official openai-go
// Chat Completions client. The client authenticates with apiKey via
// option.WithAPIKey; of cfg it applies BaseURL, Timeout, ExtraHeaders and
// RetryPolicy. cfg.Headers (the composed auth headers) are not sent.
func New(cfg request.ClientConfig, apiKey string) (provider.InferenceProvider, error) {
	if apiKey == "" {
		return nil, sdkerr.New(sdkerr.KindConfig, "openai: api key must not be empty")
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.ExtraHeaders {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	client := openai.NewClient(clientOpts...)

	base := provider.Base{ID: driverName}
	rp := cfg.RetryPolicy
	base.StreamFn = func(ctx context.Context, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error) {
		return streamChat(ctx, client, rp, req, opts)
	}
	return base, nil
}

func streamChat(ctx context.Context, client openai.Client, rp retrypolicy.RetryPolicy, req request.InferenceRequest, opts *request.RequestOptions) (<-chan assemble.EventOrError, error) {
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
	go translateChatStream(stream, ch)
	return ch, nil
}

// connectWithRetry retries establishing the stream (the initial SSE
// connection) for retriable failures observed before any chunk is
// delivered. Once a chunk has been received, the attempt is committed and
// any further failure is terminal — re-dispatching after partial delivery
// would risk emitting the same text twice to the consumer.
func connectWithRetry(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, rp retrypolicy.RetryPolicy) (*ssestream.Stream[openai.ChatCompletionChunk], error) {
	logger := corelog.WithDriver(driverName)
	correlationID := uuid.NewString()
	start := time.Now()
	attempt := 1
	for {
		stream := client.Chat.Completions.NewStreaming(ctx, params)
		if stream.Next() {
			return stream, nil
		}
		if err := stream.Err(); err != nil {
			wrapped := wrapOpenAIError(err)
			outcome, wait := retrypolicy.Decide(rp, retrypolicy.TimeoutPolicy{}, attempt, time.Since(start), wrapped)
			corelog.LogRetryDecision(logger, correlationID, attempt, outcomeLabel(outcome), wait)
			if outcome == retrypolicy.OutcomeRetry {
				sleep(ctx, wait)
				attempt++
				continue
			}
			return nil, wrapped
		}
		// Empty stream: no chunks, no error. Nothing to translate.
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

// translateChatStream implements the normalized event-stream contract:
// MessageStart once, MessageDelta/ToolCallStart/ToolCallDelta per
// increment, MessageEnd exactly once, no in-band error events.
func translateChatStream(stream *ssestream.Stream[openai.ChatCompletionChunk], ch chan<- assemble.EventOrError) {
	defer close(ch)

	logger := corelog.WithDriver(driverName)
	corelog.LogStreamLifecycle(logger, "start", "")
	ch <- assemble.EventOrError{Event: event.Event{Kind: event.MessageStart, ProviderID: driverName}}

	toolIDByIndex := make(map[int]string)
	var finishReason string
	var usage event.Usage
	haveUsage := false

	for {
		chunk := stream.Current()

		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage = event.Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}
			haveUsage = true
		}

		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			delta := choice.Delta

			if delta.Content != "" {
				ch <- assemble.EventOrError{Event: event.Event{Kind: event.MessageDelta, Content: delta.Content}}
			}

			for _, tc := range delta.ToolCalls {
				idx := int(tc.Index)
				id, seen := toolIDByIndex[idx]
				if !seen {
					id = tc.ID
					toolIDByIndex[idx] = id
					name := cleanToolName(tc.Function.Name)
					ch <- assemble.EventOrError{Event: event.Event{Kind: event.ToolCallStart, ToolCallID: id, ToolCallName: name}}
				}
				if tc.Function.Arguments != "" {
					ch <- assemble.EventOrError{Event: event.Event{Kind: event.ToolCallDelta, ToolCallID: id, Delta: tc.Function.Arguments}}
				}
			}
		}

		if !stream.Next() {
			break
		}
	}

	if err := stream.Err(); err != nil {
		ch <- assemble.EventOrError{Err: wrapOpenAIError(err)}
		return
	}

	var usagePtr *event.Usage
	if haveUsage {
		usagePtr = &usage
	}
	stopReason := event.NormalizeStopReason(finishReason)
	corelog.LogStreamLifecycle(logger, "end", stopReason.String())
	ch <- assemble.EventOrError{Event: event.Event{Kind: event.MessageEnd, StopReason: &stopReason, Usage: usagePtr}}
}

// cleanToolName strips the rare malformed prefixes OpenAI occasionally
// emits, matching llm2/openai_provider.go's hasTextBlockAtIndex-adjacent
// cleanup.
func cleanToolName(name string) string {
	for _, prefix := range []string{"tools.", "tool.", "functions.", "function."} {
		name = strings.TrimPrefix(name, prefix)
	}
	return name
}

func buildParams(req request.InferenceRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model()),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	messages, err := toChatMessages(req)
	if err != nil {
		return params, err
	}
	params.Messages = messages

	if mt := req.MaxTokens(); mt != nil {
		params.MaxCompletionTokens = param.NewOpt(int64(*mt))
	}
	if temp := req.Temperature(); temp != nil {
		params.Temperature = openai.Float(*temp)
	}
	if topP := req.TopP(); topP != nil {
		params.TopP = openai.Float(*topP)
	}

	if tools := req.Tools(); len(tools) > 0 {
		converted, err := toChatTools(tools)
		if err != nil {
			return params, err
		}
		params.Tools = converted
	}

	if rf := req.ResponseFormat(); rf != nil {
		format, err := toChatResponseFormat(*rf)
		if err != nil {
			return params, err
		}
		params.ResponseFormat = format
	}

	return params, nil
}

func toChatMessages(req request.InferenceRequest) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion

	if sys, ok := req.System(); ok && sys != "" {
		out = append(out, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: param.NewOpt(sys)},
			},
		})
	}

	for _, msg := range req.Messages() {
		switch msg.Role {
		case request.RoleUser:
			converted, err := toUserMessage(msg)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)

		case request.RoleAssistant:
			converted, err := toAssistantMessage(msg)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)

		case request.RoleTool:
			var text strings.Builder
			for _, c := range msg.Content {
				switch c.Kind {
				case request.ContentText:
					text.WriteString(c.Text)
				case request.ContentToolResult:
					text.WriteString(c.ResultText)
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					ToolCallID: msg.ToolCallID,
					Content:    openai.ChatCompletionToolMessageParamContentUnion{OfString: param.NewOpt(text.String())},
				},
			})

		default:
			return nil, sdkerr.NewInvalidRequest("unsupported role for openai chat completions: " + string(msg.Role))
		}
	}

	return out, nil
}

func toUserMessage(msg request.InferenceMessage) (openai.ChatCompletionMessageParamUnion, error) {
	var parts []openai.ChatCompletionContentPartUnionParam
	for _, c := range msg.Content {
		switch c.Kind {
		case request.ContentText:
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: c.Text},
			})
		case request.ContentImage:
			parts = append(parts, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: c.ImageURL, Detail: "high"},
				},
			})
		default:
			return openai.ChatCompletionMessageParamUnion{}, sdkerr.NewInvalidRequest("unsupported content kind for user role: " + string(c.Kind))
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		},
	}, nil
}

func toAssistantMessage(msg request.InferenceMessage) (openai.ChatCompletionMessageParamUnion, error) {
	assistantMsg := &openai.ChatCompletionAssistantMessageParam{}
	var textParts []openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion

	for _, c := range msg.Content {
		switch c.Kind {
		case request.ContentText:
			textParts = append(textParts, openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: c.Text},
			})
		case request.ContentThinking:
			continue // reasoning content is not echoed back on the wire
		case request.ContentToolUse:
			argsJSON, err := marshalToolArgs(c.ToolUseArguments)
			if err != nil {
				return openai.ChatCompletionMessageParamUnion{}, sdkerr.Wrap(sdkerr.KindSerialization, "failed to marshal tool_use arguments", err)
			}
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: c.ToolUseID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      c.ToolUseName,
						Arguments: argsJSON,
					},
				},
			})
		default:
			return openai.ChatCompletionMessageParamUnion{}, sdkerr.NewInvalidRequest("unsupported content kind for assistant role: " + string(c.Kind))
		}
	}

	if len(textParts) == 1 {
		assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(textParts[0].OfText.Text)}
	} else if len(textParts) > 0 {
		assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfArrayOfContentParts: textParts}
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: assistantMsg}, nil
}

func marshalToolArgs(args any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func toChatTools(tools []request.Tool) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schemaMap, err := schemaToMap(tool.Parameters)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindSerialization, "failed to convert schema for tool "+tool.Name, err)
		}
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: param.NewOpt(tool.Description),
					Parameters:  schemaMap,
					Strict:      param.NewOpt(tool.Strict),
				},
			},
		})
	}
	return out, nil
}

func toChatResponseFormat(rf request.ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	switch rf.Kind {
	case request.ResponseFormatText:
		return openai.ChatCompletionNewParamsResponseFormatUnion{OfText: &shared.ResponseFormatTextParam{}}, nil
	case request.ResponseFormatJSONObject:
		return openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &shared.ResponseFormatJSONObjectParam{}}, nil
	case request.ResponseFormatJSONSchema:
		schemaMap, err := schemaToMap(rf.Schema)
		if err != nil {
			return openai.ChatCompletionNewParamsResponseFormatUnion{}, sdkerr.Wrap(sdkerr.KindSerialization, "failed to convert response_format schema", err)
		}
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        rf.Name,
					Description: param.NewOpt(rf.Description),
					Schema:      schemaMap,
					Strict:      param.NewOpt(rf.Strict),
				},
			},
		}, nil
	default:
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, sdkerr.NewInvalidRequest("unsupported response format kind")
	}
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// wrapOpenAIError classifies an error from the openai-go client into the
// closed taxonomy, grounded on llm2/openai_provider.go's wrapOpenAIError
// (which extracts status/message/code from the library's *openai.Error).
func wrapOpenAIError(err error) *sdkerr.SdkError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = apiErr.Error()
		}
		return sdkerr.NewAPIError(apiErr.StatusCode, message, apiErr.Code)
	}
	return sdkerr.Wrap(sdkerr.KindHTTP, "openai transport error", err)
}
