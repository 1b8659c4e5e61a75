package ports

import "context"

// Message roles on the provider wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Provider streams chat completions from an LLM backend.
type Provider interface {
	// Stream opens a completion stream. The channel closes after a
	// terminal event (done or error); cancelling ctx aborts the stream.
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)

	// Model returns the model identifier
	Model() string

	// Name returns the provider name ("openai", "ollama", ...)
	Name() string
}

// ChatRequest contains all parameters for a provider call.
type ChatRequest struct {
	System      string           `json:"system,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// Message is a single conversation turn on the wire.
type Message struct {
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StreamEventType tags events on a provider stream.
type StreamEventType string

const (
	StreamToken    StreamEventType = "token"
	StreamToolCall StreamEventType = "tool_call"
	StreamDone     StreamEventType = "done"
	StreamError    StreamEventType = "error"
)

// StreamEvent is one event on a provider stream. Exactly one payload field is
// set depending on Type; Usage rides on the done event when the backend
// reports it.
type StreamEvent struct {
	Type     StreamEventType
	Token    string
	ToolCall *ToolCall
	Usage    *TokenUsage
	Err      error
}

// TokenUsage tracks token consumption for one provider call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across provider rounds within a turn.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// TokenSink receives streamed tokens as they arrive. User-facing turns wire a
// live sink; scheduler turns pass nil and read the buffered result.
type TokenSink func(token string)

// FunctionCallParser lifts tool-call envelopes out of assistant text when the
// backend has no native tool calling. Native calls always win; Extract is
// only consulted when the stream produced zero tool_call events.
type FunctionCallParser interface {
	// Extract returns the calls found in text and the text with the
	// envelopes removed
	Extract(text string) ([]ToolCall, string)
}
