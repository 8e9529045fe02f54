// Package request defines the normalized InferenceRequest shape and its
// builder, plus the per-request and per-client configuration types every
// provider crate consumes (RequestOptions, ClientConfig).
package request

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Role is the closed set of message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind is the closed set of content block kinds an InferenceMessage
// can carry.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentThinking   ContentKind = "thinking"
	ContentToolUse    ContentKind = "tool_use"
	ContentToolResult ContentKind = "tool_result"
	ContentImage      ContentKind = "image"
)

// InferenceContent is a tagged variant of a single content block.
type InferenceContent struct {
	Kind ContentKind

	// Text / Thinking
	Text string

	// ToolUse
	ToolUseID        string
	ToolUseName      string
	ToolUseArguments any // parsed JSON value

	// ToolResult
	ToolCallID string // also used as the "tool_call_id matched" side of ToolUse.ID
	ResultText string

	// Image: exactly one of URL or Data (+MimeType) is set.
	ImageURL      string
	ImageData     []byte
	ImageMimeType string

	// CacheControl is a provider-agnostic prompt-caching hint, passed
	// through verbatim by adapters that support it (e.g. Anthropic's
	// "ephemeral"). Empty means no hint.
	CacheControl string
}

func Text(text string) InferenceContent {
	return InferenceContent{Kind: ContentText, Text: text}
}

func Thinking(text string) InferenceContent {
	return InferenceContent{Kind: ContentThinking, Text: text}
}

func ToolUse(id, name string, arguments any) InferenceContent {
	return InferenceContent{Kind: ContentToolUse, ToolUseID: id, ToolUseName: name, ToolUseArguments: arguments}
}

func ToolResult(toolCallID, text string) InferenceContent {
	return InferenceContent{Kind: ContentToolResult, ToolCallID: toolCallID, ResultText: text}
}

func ImageURL(url string) InferenceContent {
	return InferenceContent{Kind: ContentImage, ImageURL: url}
}

// InferenceMessage is a single chat turn.
type InferenceMessage struct {
	Role       Role
	Content    []InferenceContent
	ToolCallID string // required iff Role == RoleTool
}

// ResponseFormatKind is the closed set of structured-output directives.
type ResponseFormatKind string

const (
	ResponseFormatText       ResponseFormatKind = "text"
	ResponseFormatJSONObject ResponseFormatKind = "json_object"
	ResponseFormatJSONSchema ResponseFormatKind = "json_schema"
)

// ResponseFormat directs structured output. Schema/Name/Description are
// only meaningful when Kind == ResponseFormatJSONSchema.
type ResponseFormat struct {
	Kind        ResponseFormatKind
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Strict      bool
}

// Tool is a single callable tool definition offered to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Strict      bool
}

// InferenceRequest is the normalized completion request. It is immutable
// once built: pure data, no references to I/O resources.
type InferenceRequest struct {
	model          string
	system         string
	hasSystem      bool
	messages       []InferenceMessage
	maxTokens      *int
	temperature    *float64
	topP           *float64
	tools          []Tool
	responseFormat *ResponseFormat
}

func (r InferenceRequest) Model() string                   { return r.model }
func (r InferenceRequest) System() (string, bool)           { return r.system, r.hasSystem }
func (r InferenceRequest) Messages() []InferenceMessage     { return r.messages }
func (r InferenceRequest) MaxTokens() *int                  { return r.maxTokens }
func (r InferenceRequest) Temperature() *float64            { return r.temperature }
func (r InferenceRequest) TopP() *float64                   { return r.topP }
func (r InferenceRequest) Tools() []Tool                    { return r.tools }
func (r InferenceRequest) ResponseFormat() *ResponseFormat   { return r.responseFormat }

// RequestOptions carries per-request overrides layered on top of
// ClientConfig. Constructed additively; discarded after the call.
type RequestOptions struct {
	timeout        *time.Duration
	overallTimeout *time.Duration
	maxRetries     *uint32
	extraHeaders   map[string]string
	proxy          *string
}

func NewRequestOptions() *RequestOptions {
	return &RequestOptions{}
}

// WithTimeout sets the per-attempt timeout for this request only.
func (o *RequestOptions) WithTimeout(d time.Duration) *RequestOptions {
	o.timeout = &d
	return o
}

// WithOverallTimeout sets the overall deadline for the whole call,
// including every retry and sleep; default is unbounded.
func (o *RequestOptions) WithOverallTimeout(d time.Duration) *RequestOptions {
	o.overallTimeout = &d
	return o
}

// WithRetries sets the maximum number of retries for this request only.
func (o *RequestOptions) WithRetries(n uint32) *RequestOptions {
	o.maxRetries = &n
	return o
}

// WithMaxRetries is a compatibility alias for WithRetries.
func (o *RequestOptions) WithMaxRetries(n uint32) *RequestOptions {
	return o.WithRetries(n)
}

func (o *RequestOptions) WithHeaders(headers map[string]string) *RequestOptions {
	if o.extraHeaders == nil {
		o.extraHeaders = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		o.extraHeaders[k] = v
	}
	return o
}

func (o *RequestOptions) WithProxy(proxyURL string) *RequestOptions {
	o.proxy = &proxyURL
	return o
}

func (o *RequestOptions) Timeout() *time.Duration        { return o.timeout }
func (o *RequestOptions) OverallTimeout() *time.Duration { return o.overallTimeout }
func (o *RequestOptions) MaxRetries() *uint32             { return o.maxRetries }
func (o *RequestOptions) ExtraHeaders() map[string]string { return o.extraHeaders }
func (o *RequestOptions) Proxy() *string                  { return o.proxy }
