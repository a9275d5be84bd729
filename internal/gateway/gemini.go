package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"novelcraft-backend/internal/models"
)

// GeminiAdapter speaks Google's Gemini generateContent wire format: messages
// become a nested contents/parts structure, a leading system message moves
// into systemInstruction, and generation parameters use vendor names.
// Streaming uses streamGenerateContent with alt=sse framing (data: JSON
// frames, no [DONE] sentinel; end of stream is the terminal signal).
type GeminiAdapter struct{}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func toGeminiRequest(cfg *models.ModelConfig, messages []Message, params CallParams) *geminiRequest {
	gr := &geminiRequest{}

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			// Gemini accepts a single systemInstruction; multiple system
			// messages concatenate as extra parts, preserving order.
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &geminiContent{
					Parts: []geminiPart{{Text: msg.Content}},
				}
			} else {
				gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: msg.Content})
			}
			continue
		}

		role := msg.Role
		if role == RoleAssistant {
			role = "model"
		}
		gr.Contents = append(gr.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	temperature, topP, maxTokens := effectiveParams(cfg, params)
	gr.GenerationConfig = &geminiGenConfig{
		Temperature:     temperature,
		TopP:            topP,
		MaxOutputTokens: maxTokens,
	}

	return gr
}

// mapFinishReason maps Gemini's finish-reason vocabulary onto the canonical
// one. Unknown values default to stop.
func mapFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "RECITATION":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

func (a *GeminiAdapter) BuildRequest(cfg *models.ModelConfig, messages []Message, params CallParams, stream bool) (*http.Request, error) {
	body, err := json.Marshal(toGeminiRequest(cfg, messages, params))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	method := "generateContent"
	query := ""
	if stream {
		method = "streamGenerateContent"
		query = "alt=sse&"
	}
	url := fmt.Sprintf("%s/models/%s:%s?%skey=%s",
		strings.TrimRight(cfg.Endpoint, "/"), cfg.UpstreamModel, method, query, cfg.APIKey)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

func (a *GeminiAdapter) ParseResponse(status int, body []byte) (*Result, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status >= 400 {
			return nil, &ProviderError{Status: status, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.Error != nil {
		return nil, &ProviderError{
			Code:    resp.Error.Status,
			Status:  resp.Error.Code,
			Message: resp.Error.Message,
		}
	}
	if status >= 400 {
		return nil, &ProviderError{Status: status, Message: strings.TrimSpace(string(body))}
	}

	result := &Result{FinishReason: FinishStop}
	if len(resp.Candidates) > 0 {
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		result.Content = sb.String()
		result.FinishReason = mapFinishReason(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		result.Usage = &Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

func (a *GeminiAdapter) ParseStreamLine(line string) (*StreamEvent, error) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil, nil
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	var resp geminiResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("decoding stream chunk: %w", err)
	}

	if resp.Error != nil {
		return nil, &ProviderError{
			Code:    resp.Error.Status,
			Status:  resp.Error.Code,
			Message: resp.Error.Message,
		}
	}

	event := &StreamEvent{}
	if len(resp.Candidates) > 0 {
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		event.Delta = sb.String()
		if fr := resp.Candidates[0].FinishReason; fr != "" {
			event.FinishReason = mapFinishReason(fr)
			event.Done = true
		}
	}
	if resp.UsageMetadata != nil {
		event.Usage = &Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return event, nil
}
