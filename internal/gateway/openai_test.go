package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelcraft-backend/internal/models"
)

func openAITestModel() *models.ModelConfig {
	return &models.ModelConfig{
		ProviderKind:  models.ProviderKindOpenAI,
		Endpoint:      "https://api.example.com/v1/chat/completions",
		APIKey:        "sk-test",
		UpstreamModel: "gpt-test",
		Temperature:   0.7,
		TopP:          0.9,
		MaxTokens:     2048,
	}
}

func TestOpenAIBuildRequest(t *testing.T) {
	adapter := &OpenAIAdapter{}
	req, err := adapter.BuildRequest(openAITestModel(), []Message{
		{Role: RoleSystem, Content: "You are a ghostwriter."},
		{Role: RoleUser, Content: "Write an opening line."},
	}, CallParams{}, false)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://api.example.com/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body openAIRequest
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "gpt-test", body.Model)
	assert.False(t, body.Stream)
	assert.Len(t, body.Messages, 2)
	assert.InDelta(t, 0.7, body.Temperature, 1e-9)
	assert.Equal(t, 2048, body.MaxTokens)
}

func TestOpenAIBuildRequestOverridesDefaults(t *testing.T) {
	temperature := 1.2
	maxTokens := 64
	adapter := &OpenAIAdapter{}
	req, err := adapter.BuildRequest(openAITestModel(), nil, CallParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", req.Header.Get("Accept"))

	raw, _ := io.ReadAll(req.Body)
	var body openAIRequest
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.Stream)
	assert.InDelta(t, 1.2, body.Temperature, 1e-9)
	assert.Equal(t, 64, body.MaxTokens)
}

func TestOpenAIParseResponse(t *testing.T) {
	adapter := &OpenAIAdapter{}
	result, err := adapter.ParseResponse(200, []byte(`{"choices":[{"message":{"content":"It was a dark night."},"finish_reason":"length"}],"usage":{"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}}`))
	require.NoError(t, err)
	assert.Equal(t, "It was a dark night.", result.Content)
	assert.Equal(t, FinishLength, result.FinishReason)
	assert.Equal(t, 16, result.Usage.TotalTokens)
}

func TestOpenAIParseResponseStructuredError(t *testing.T) {
	adapter := &OpenAIAdapter{}
	_, err := adapter.ParseResponse(401, []byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "invalid_api_key", pe.Code)
	assert.Equal(t, 401, pe.Status)
	assert.Equal(t, "bad key", pe.Message)
}

func TestOpenAIParseResponseNonJSONError(t *testing.T) {
	adapter := &OpenAIAdapter{}
	_, err := adapter.ParseResponse(502, []byte("<html>bad gateway</html>"))
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 502, pe.Status)
}

func TestOpenAIParseStreamLine(t *testing.T) {
	adapter := &OpenAIAdapter{}

	event, err := adapter.ParseStreamLine(`data: {"choices":[{"delta":{"content":"he said"}}]}`)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "he said", event.Delta)
	assert.False(t, event.Done)

	event, err = adapter.ParseStreamLine("data: [DONE]")
	require.NoError(t, err)
	assert.True(t, event.Done)

	event, err = adapter.ParseStreamLine(": keep-alive")
	require.NoError(t, err)
	assert.Nil(t, event)

	event, err = adapter.ParseStreamLine("")
	require.NoError(t, err)
	assert.Nil(t, event)

	event, err = adapter.ParseStreamLine(`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`)
	require.NoError(t, err)
	assert.Equal(t, FinishStop, event.FinishReason)
	assert.Empty(t, event.Delta)
}

func TestOpenAIParseStreamLineError(t *testing.T) {
	adapter := &OpenAIAdapter{}
	_, err := adapter.ParseStreamLine(`data: {"error":{"message":"overloaded","code":"rate_limited"}}`)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "rate_limited", pe.Code)
}
