package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelcraft-backend/internal/models"
)

func newTestExecutor() *Executor {
	e := NewExecutor()
	e.Backoff = func(models.TimeoutClass, int, int) time.Duration { return 0 }
	return e
}

func testModel(endpoint string, retries int) *models.ModelConfig {
	return &models.ModelConfig{
		Name:           "test-model",
		ProviderKind:   models.ProviderKindOpenAI,
		Endpoint:       endpoint,
		APIKey:         "sk-test",
		UpstreamModel:  "gpt-test",
		TimeoutSeconds: 5,
		TimeoutClass:   models.TimeoutClassStandard,
		RetryCount:     retries,
	}
}

func TestExecuteReturnsParsedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"a quiet village"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`))
	}))
	defer server.Close()

	result, err := newTestExecutor().Execute(context.Background(), testModel(server.URL, 0), []Message{{Role: RoleUser, Content: "describe"}}, CallParams{})
	require.NoError(t, err)
	assert.Equal(t, "a quiet village", result.Content)
	assert.Equal(t, FinishStop, result.FinishReason)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 9, result.Usage.TotalTokens)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	result, err := newTestExecutor().Execute(context.Background(), testModel(server.URL, 3), nil, CallParams{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestExecutor().Execute(context.Background(), testModel(server.URL, 2), nil, CallParams{})
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 3, ue.Attempts)
	assert.Equal(t, "service_unavailable", ue.Code)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid model","type":"invalid_request_error","code":"model_not_found"}}`))
	}))
	defer server.Close()

	_, err := newTestExecutor().Execute(context.Background(), testModel(server.URL, 5), nil, CallParams{})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "model_not_found", pe.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "4xx responses must not be retried")
}

func TestOpenStreamDeliversLiveBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"))
	}))
	defer server.Close()

	body, adapter, err := newTestExecutor().OpenStream(context.Background(), testModel(server.URL, 0), nil, CallParams{})
	require.NoError(t, err)
	defer body.Close()
	require.IsType(t, &OpenAIAdapter{}, adapter)

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[DONE]")
}

func TestOpenStreamRetriesThenSucceeds(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	body, _, err := newTestExecutor().OpenStream(context.Background(), testModel(server.URL, 1), nil, CallParams{})
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCallTimeoutAppliesExtendedFloor(t *testing.T) {
	standard := &models.ModelConfig{TimeoutSeconds: 60, TimeoutClass: models.TimeoutClassStandard}
	assert.Equal(t, 60*time.Second, CallTimeout(standard))

	extended := &models.ModelConfig{TimeoutSeconds: 60, TimeoutClass: models.TimeoutClassExtended}
	assert.Equal(t, 5*time.Minute, CallTimeout(extended))

	generous := &models.ModelConfig{TimeoutSeconds: 600, TimeoutClass: models.TimeoutClassExtended}
	assert.Equal(t, 10*time.Minute, CallTimeout(generous))

	unset := &models.ModelConfig{TimeoutClass: models.TimeoutClassStandard}
	assert.Equal(t, 120*time.Second, CallTimeout(unset))
}

func TestBackoffDelayDoublesUpToCap(t *testing.T) {
	assert.Equal(t, time.Second, BackoffDelay(models.TimeoutClassStandard, 1, http.StatusServiceUnavailable))
	assert.Equal(t, 2*time.Second, BackoffDelay(models.TimeoutClassStandard, 2, http.StatusServiceUnavailable))
	assert.Equal(t, 4*time.Second, BackoffDelay(models.TimeoutClassStandard, 3, http.StatusServiceUnavailable))
	assert.Equal(t, 30*time.Second, BackoffDelay(models.TimeoutClassStandard, 10, http.StatusServiceUnavailable))

	assert.Equal(t, 2*time.Second, BackoffDelay(models.TimeoutClassStandard, 1, http.StatusTooManyRequests))
	assert.Equal(t, 4*time.Second, BackoffDelay(models.TimeoutClassStandard, 2, http.StatusTooManyRequests))

	assert.Equal(t, 30*time.Second, BackoffDelay(models.TimeoutClassExtended, 1, http.StatusServiceUnavailable))
	assert.Equal(t, 60*time.Second, BackoffDelay(models.TimeoutClassExtended, 2, http.StatusServiceUnavailable))
	assert.Equal(t, 180*time.Second, BackoffDelay(models.TimeoutClassExtended, 5, http.StatusServiceUnavailable))
}

func TestRetryableNetError(t *testing.T) {
	assert.False(t, retryableNetError(context.Canceled))
	assert.True(t, retryableNetError(context.DeadlineExceeded))
	assert.False(t, retryableNetError(errors.New("plain failure")))
}

func TestAdapterForRejectsUnknownKind(t *testing.T) {
	_, err := AdapterFor(models.ProviderKind("anthropic"))
	assert.Error(t, err)

	adapter, err := AdapterFor(models.ProviderKindGemini)
	require.NoError(t, err)
	assert.IsType(t, &GeminiAdapter{}, adapter)
}
