// Package gateway turns a business request into a provider-agnostic AI call:
// it resolves the wire format through a provider adapter, executes the HTTP
// call with retry and timeout policy, and (for streaming calls) relays the
// provider's event stream to the browser as Server-Sent Events while
// guaranteeing exactly-once billing and audit.
package gateway

// Canonical message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Canonical finish reasons. Vendor vocabularies are mapped onto these by the
// adapters.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)

// Message is one canonical chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallParams are the caller-tunable generation parameters. Nil means "use
// the model configuration default".
type CallParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Usage holds normalized token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a complete buffered response.
type Result struct {
	Content      string
	FinishReason string
	Usage        *Usage
}

// StreamEvent is one parsed event from a provider byte stream.
type StreamEvent struct {
	Delta        string
	Done         bool
	FinishReason string
	Usage        *Usage
}
