package gateway

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelcraft-backend/internal/models"
)

func geminiTestModel() *models.ModelConfig {
	return &models.ModelConfig{
		ProviderKind:  models.ProviderKindGemini,
		Endpoint:      "https://generativelanguage.googleapis.com/v1beta",
		APIKey:        "g-test",
		UpstreamModel: "gemini-test",
		Temperature:   0.8,
		MaxTokens:     1024,
	}
}

func TestGeminiBuildRequestTransformsMessages(t *testing.T) {
	adapter := &GeminiAdapter{}
	req, err := adapter.BuildRequest(geminiTestModel(), []Message{
		{Role: RoleSystem, Content: "You write detective fiction."},
		{Role: RoleUser, Content: "Who is the culprit?"},
		{Role: RoleAssistant, Content: "The butler."},
		{Role: RoleUser, Content: "Prove it."},
	}, CallParams{}, false)
	require.NoError(t, err)

	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-test:generateContent?key=g-test", req.URL.String())

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body geminiRequest
	require.NoError(t, json.Unmarshal(raw, &body))

	require.NotNil(t, body.SystemInstruction)
	assert.Equal(t, "You write detective fiction.", body.SystemInstruction.Parts[0].Text)

	require.Len(t, body.Contents, 3)
	assert.Equal(t, "user", body.Contents[0].Role)
	assert.Equal(t, "model", body.Contents[1].Role)
	assert.Equal(t, "The butler.", body.Contents[1].Parts[0].Text)

	require.NotNil(t, body.GenerationConfig)
	assert.InDelta(t, 0.8, body.GenerationConfig.Temperature, 1e-9)
	assert.Equal(t, 1024, body.GenerationConfig.MaxOutputTokens)
}

func TestGeminiBuildRequestStreamURL(t *testing.T) {
	adapter := &GeminiAdapter{}
	req, err := adapter.BuildRequest(geminiTestModel(), nil, CallParams{}, true)
	require.NoError(t, err)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-test:streamGenerateContent?alt=sse&key=g-test", req.URL.String())
}

func TestGeminiMergesMultipleSystemMessages(t *testing.T) {
	adapter := &GeminiAdapter{}
	req, err := adapter.BuildRequest(geminiTestModel(), []Message{
		{Role: RoleSystem, Content: "Persona."},
		{Role: RoleSystem, Content: "Safety rules."},
		{Role: RoleUser, Content: "Go."},
	}, CallParams{}, false)
	require.NoError(t, err)

	raw, _ := io.ReadAll(req.Body)
	var body geminiRequest
	require.NoError(t, json.Unmarshal(raw, &body))

	require.NotNil(t, body.SystemInstruction)
	require.Len(t, body.SystemInstruction.Parts, 2)
	assert.Equal(t, "Persona.", body.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "Safety rules.", body.SystemInstruction.Parts[1].Text)
	assert.Len(t, body.Contents, 1)
}

func TestGeminiParseResponse(t *testing.T) {
	adapter := &GeminiAdapter{}
	result, err := adapter.ParseResponse(200, []byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"The rain "},{"text":"had stopped."}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":5,"totalTokenCount":12}}`))
	require.NoError(t, err)
	assert.Equal(t, "The rain had stopped.", result.Content)
	assert.Equal(t, FinishStop, result.FinishReason)
	assert.Equal(t, 12, result.Usage.TotalTokens)
}

func TestGeminiFinishReasonMapping(t *testing.T) {
	assert.Equal(t, FinishStop, mapFinishReason("STOP"))
	assert.Equal(t, FinishLength, mapFinishReason("MAX_TOKENS"))
	assert.Equal(t, FinishContentFilter, mapFinishReason("SAFETY"))
	assert.Equal(t, FinishContentFilter, mapFinishReason("RECITATION"))
	assert.Equal(t, FinishStop, mapFinishReason("SOMETHING_NEW"))
}

func TestGeminiParseResponseError(t *testing.T) {
	adapter := &GeminiAdapter{}
	_, err := adapter.ParseResponse(429, []byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "RESOURCE_EXHAUSTED", pe.Code)
	assert.Equal(t, 429, pe.Status)
}

func TestGeminiParseStreamLine(t *testing.T) {
	adapter := &GeminiAdapter{}

	event, err := adapter.ParseStreamLine(`data: {"candidates":[{"content":{"parts":[{"text":"chapter"}]}}]}`)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "chapter", event.Delta)
	assert.False(t, event.Done)

	// A finishReason on a frame is Gemini's terminal signal; there is no
	// [DONE] sentinel.
	event, err = adapter.ParseStreamLine(`data: {"candidates":[{"content":{"parts":[{"text":" ends."}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":40}}`)
	require.NoError(t, err)
	assert.True(t, event.Done)
	assert.Equal(t, " ends.", event.Delta)
	assert.Equal(t, FinishStop, event.FinishReason)
	require.NotNil(t, event.Usage)
	assert.Equal(t, 40, event.Usage.TotalTokens)

	event, err = adapter.ParseStreamLine("")
	require.NoError(t, err)
	assert.Nil(t, event)
}
