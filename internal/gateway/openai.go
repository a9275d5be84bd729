package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"novelcraft-backend/internal/models"
)

// OpenAIAdapter speaks the OpenAI-style chat-completions wire format, which
// most compatible vendors also accept. Streaming responses are
// newline-delimited "data: {json}" frames terminated by a literal
// "data: [DONE]" sentinel.
type OpenAIAdapter struct{}

const doneSentinel = "[DONE]"

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
	Error *openAIError `json:"error"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
	Error *openAIError `json:"error"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (a *OpenAIAdapter) BuildRequest(cfg *models.ModelConfig, messages []Message, params CallParams, stream bool) (*http.Request, error) {
	temperature, topP, maxTokens := effectiveParams(cfg, params)

	body, err := json.Marshal(openAIRequest{
		Model:       cfg.UpstreamModel,
		Messages:    messages,
		Stream:      stream,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	return req, nil
}

func (a *OpenAIAdapter) ParseResponse(status int, body []byte) (*Result, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status >= 400 {
			return nil, &ProviderError{Status: status, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.Error != nil {
		return nil, &ProviderError{
			Code:    fmt.Sprint(resp.Error.Code),
			Status:  status,
			Message: resp.Error.Message,
		}
	}
	if status >= 400 {
		return nil, &ProviderError{Status: status, Message: strings.TrimSpace(string(body))}
	}

	if len(resp.Choices) == 0 {
		return &Result{FinishReason: FinishStop}, nil
	}

	result := &Result{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
	}
	if result.FinishReason == "" {
		result.FinishReason = FinishStop
	}
	if resp.Usage != nil {
		result.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

func (a *OpenAIAdapter) ParseStreamLine(line string) (*StreamEvent, error) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil, nil
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}
	if payload == doneSentinel {
		return &StreamEvent{Done: true}, nil
	}

	var chunk openAIStreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, fmt.Errorf("decoding stream chunk: %w", err)
	}

	if chunk.Error != nil {
		return nil, &ProviderError{
			Code:    fmt.Sprint(chunk.Error.Code),
			Message: chunk.Error.Message,
		}
	}

	event := &StreamEvent{}
	if chunk.Usage != nil {
		event.Usage = &Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	if len(chunk.Choices) > 0 {
		event.Delta = chunk.Choices[0].Delta.Content
		if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
			event.FinishReason = *fr
		}
	}
	return event, nil
}
