package gateway

import (
	"fmt"
	"net/http"

	"novelcraft-backend/internal/models"
)

// Adapter translates between the canonical request/response shapes and one
// upstream wire format. Adapters are stateless; one instance serves all
// calls.
type Adapter interface {
	// BuildRequest produces the HTTP request for one call attempt. It is
	// called once per retry attempt so the body reader is always fresh.
	BuildRequest(cfg *models.ModelConfig, messages []Message, params CallParams, stream bool) (*http.Request, error)

	// ParseResponse turns a buffered upstream body into a canonical Result.
	// When the upstream returned a structured error body, it returns a
	// *ProviderError carrying the vendor's code and status.
	ParseResponse(status int, body []byte) (*Result, error)

	// ParseStreamLine parses one line of the provider's event stream.
	// It returns (nil, nil) for lines that carry no event (blank lines,
	// comments, non-data fields).
	ParseStreamLine(line string) (*StreamEvent, error)
}

// AdapterFor returns the adapter for a configured provider kind. The set of
// kinds is closed; selection is by explicit configuration, never by
// inspecting the model's display name.
func AdapterFor(kind models.ProviderKind) (Adapter, error) {
	switch kind {
	case models.ProviderKindOpenAI:
		return &OpenAIAdapter{}, nil
	case models.ProviderKindGemini:
		return &GeminiAdapter{}, nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", kind)
	}
}

// effectiveParams folds the model configuration defaults into the caller's
// parameters.
func effectiveParams(cfg *models.ModelConfig, params CallParams) (temperature, topP float64, maxTokens int) {
	temperature = cfg.Temperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	topP = cfg.TopP
	if params.TopP != nil {
		topP = *params.TopP
	}
	maxTokens = cfg.MaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	return temperature, topP, maxTokens
}
