package request

import (
	"github.com/sidedotdev/inferencecore/sdkerr"
)

// Builder constructs an InferenceRequest. It is terminal: once Build() is
// called, the builder must not be reused.
type Builder struct {
	req   InferenceRequest
	built bool
}

func NewRequestBuilder(model string) *Builder {
	return &Builder{req: InferenceRequest{model: model}}
}

func (b *Builder) System(system string) *Builder {
	b.req.system = system
	b.req.hasSystem = true
	return b
}

func (b *Builder) AddMessage(msg InferenceMessage) *Builder {
	b.req.messages = append(b.req.messages, msg)
	return b
}

func (b *Builder) Messages(msgs ...InferenceMessage) *Builder {
	b.req.messages = append(b.req.messages, msgs...)
	return b
}

func (b *Builder) MaxTokens(n int) *Builder {
	b.req.maxTokens = &n
	return b
}

func (b *Builder) Temperature(t float64) *Builder {
	b.req.temperature = &t
	return b
}

func (b *Builder) TopP(p float64) *Builder {
	b.req.topP = &p
	return b
}

func (b *Builder) AddTool(tool Tool) *Builder {
	b.req.tools = append(b.req.tools, tool)
	return b
}

func (b *Builder) ResponseFormat(format ResponseFormat) *Builder {
	b.req.responseFormat = &format
	return b
}

// Build validates the accumulated state's invariants and returns the
// immutable InferenceRequest, or an InvalidRequest error.
func (b *Builder) Build() (InferenceRequest, error) {
	if b.built {
		return InferenceRequest{}, sdkerr.NewInvalidRequest("builder already used to build a request")
	}
	b.built = true

	if b.req.model == "" {
		return InferenceRequest{}, sdkerr.NewInvalidRequest("model must not be empty")
	}
	if len(b.req.messages) == 0 {
		return InferenceRequest{}, sdkerr.NewInvalidRequest("messages must not be empty")
	}

	for i, msg := range b.req.messages {
		if msg.Role == RoleTool && msg.ToolCallID == "" {
			return InferenceRequest{}, sdkerr.NewInvalidRequest("message with role Tool must have a non-empty ToolCallID")
		}
		if msg.Role != RoleTool && msg.ToolCallID != "" {
			return InferenceRequest{}, sdkerr.NewInvalidRequest("only messages with role Tool may set ToolCallID")
		}
		_ = i
	}

	if len(b.req.tools) > 0 {
		seen := make(map[string]struct{}, len(b.req.tools))
		for _, tool := range b.req.tools {
			if _, ok := seen[tool.Name]; ok {
				return InferenceRequest{}, sdkerr.NewInvalidRequest("duplicate tool name: " + tool.Name)
			}
			seen[tool.Name] = struct{}{}
		}
	}

	if format := b.req.responseFormat; format != nil && format.Kind == ResponseFormatJSONSchema {
		if format.Name == "" {
			return InferenceRequest{}, sdkerr.NewInvalidRequest("response_format json_schema requires a non-empty name")
		}
		if format.Schema == nil || format.Schema.Type != "object" {
			return InferenceRequest{}, sdkerr.NewInvalidRequest("response_format json_schema requires a JSON object schema")
		}
	}

	return b.req, nil
}
