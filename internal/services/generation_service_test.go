package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

type testSink struct {
	mu     sync.Mutex
	events []string
}

func (s *testSink) Send(event string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *testSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

func seedCallModel(endpoint string) models.ModelConfig {
	cfg := models.ModelConfig{
		Name:           "story-model",
		ProviderKind:   models.ProviderKindOpenAI,
		Endpoint:       endpoint,
		APIKey:         "sk-test",
		UpstreamModel:  "gpt-test",
		TimeoutSeconds: 5,
		TimeoutClass:   models.TimeoutClassStandard,
		RetryCount:     0,
		CreditCost:     2,
		IsActive:       true,
		IsDefault:      true,
	}
	database.DB.Create(&cfg)
	return cfg
}

func callInput(userID uint) CallInput {
	return CallInput{
		UserID:       userID,
		ModelRef:     "story-model",
		BusinessType: BusinessTypeChapter,
		SystemPrompt: BuildSystemPrompt(BusinessTypeChapter, ""),
		UserPrompt:   "Write the opening scene.",
	}
}

func TestExecuteCallBillsAndRecords(t *testing.T) {
	setupTestDB()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"The fog rolled in."},"finish_reason":"stop"}],"usage":{"prompt_tokens":20,"completion_tokens":6,"total_tokens":26}}`))
	}))
	defer server.Close()

	seedCallModel(server.URL)
	seedEntitlement(1, 10, 24*time.Hour)

	result, cfg, err := ExecuteCall(context.Background(), callInput(1))
	require.NoError(t, err)
	assert.Equal(t, "The fog rolled in.", result.Content)
	assert.Equal(t, "story-model", cfg.Name)

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), balance)

	var record models.CallRecord
	require.NoError(t, database.DB.Last(&record).Error)
	assert.Equal(t, models.CallStatusSuccess, record.Status)
	assert.Equal(t, BusinessTypeChapter, record.BusinessType)
	require.NotNil(t, record.ResponseContent)
	assert.Equal(t, "The fog rolled in.", *record.ResponseContent)

	var model models.ModelConfig
	database.DB.First(&model, cfg.ID)
	assert.Equal(t, int64(1), model.UsageCount)
}

func TestExecuteCallEmptyResponseIsFree(t *testing.T) {
	setupTestDB()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"   "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	seedCallModel(server.URL)
	seedEntitlement(1, 10, 24*time.Hour)

	_, _, err := ExecuteCall(context.Background(), callInput(1))
	assert.ErrorIs(t, err, gateway.ErrEmptyResponse)

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	var record models.CallRecord
	require.NoError(t, database.DB.Last(&record).Error)
	assert.Equal(t, models.CallStatusEmptyResponse, record.Status)
}

func TestExecuteCallInsufficientCreditsNeverReachesProvider(t *testing.T) {
	setupTestDB()

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	seedCallModel(server.URL)
	seedEntitlement(1, 1, 24*time.Hour) // model costs 2

	_, _, err := ExecuteCall(context.Background(), callInput(1))
	assert.ErrorIs(t, err, gateway.ErrInsufficientCredits)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestExecuteCallUnknownModel(t *testing.T) {
	setupTestDB()

	input := callInput(1)
	input.ModelRef = "missing-model"
	_, _, err := ExecuteCall(context.Background(), input)
	assert.ErrorIs(t, err, gateway.ErrModelNotFound)
}

func TestExecuteStreamCallBillsExactlyOnce(t *testing.T) {
	setupTestDB()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"The city \"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"slept.\"},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":15}}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	seedCallModel(server.URL)
	seedEntitlement(1, 10, 24*time.Hour)

	sink := &testSink{}
	var completions int32
	var last gateway.Completion
	err := ExecuteStreamCall(context.Background(), sink, callInput(1), func(c gateway.Completion) {
		atomic.AddInt32(&completions, 1)
		last = c
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&completions))
	assert.Equal(t, gateway.ReasonCompleted, last.Reason)
	assert.Equal(t, "The city slept.", last.Content)
	assert.Equal(t, 1, sink.count("connected"))
	assert.Equal(t, 1, sink.count("done"))

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), balance)

	var consumeCount int64
	database.DB.Model(&models.Transaction{}).
		Where("type = ?", models.TransactionTypeCreditConsume).
		Count(&consumeCount)
	assert.Equal(t, int64(1), consumeCount)

	var record models.CallRecord
	require.NoError(t, database.DB.Last(&record).Error)
	assert.Equal(t, models.CallStatusSuccess, record.Status)
	assert.Equal(t, 0, StreamRegistry.Len())
}

func TestExecuteStreamCallEmptyStreamIsFree(t *testing.T) {
	setupTestDB()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	seedCallModel(server.URL)
	seedEntitlement(1, 10, 24*time.Hour)

	sink := &testSink{}
	err := ExecuteStreamCall(context.Background(), sink, callInput(1), nil)
	require.NoError(t, err)

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	var record models.CallRecord
	require.NoError(t, database.DB.Last(&record).Error)
	assert.Equal(t, models.CallStatusEmptyResponse, record.Status)
}

func TestExecuteStreamCallPreflightFailureSendsNoFrames(t *testing.T) {
	setupTestDB()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	seedCallModel(server.URL)

	sink := &testSink{}
	err := ExecuteStreamCall(context.Background(), sink, callInput(1), nil)
	assert.ErrorIs(t, err, gateway.ErrInsufficientCredits)
	assert.Empty(t, sink.events)
}

func TestSettleStreamEmptyDisconnectRecordsEmptyResponse(t *testing.T) {
	setupTestDB()

	cfg := seedCallModel("http://unused.invalid")
	seedEntitlement(7, 5, 24*time.Hour)

	// A client that bails before any content arrived produced nothing:
	// the record says so and no credit moves, whatever ended the stream.
	settleStream(&cfg, callInput(7), gateway.Completion{
		Reason:  gateway.ReasonDisconnected,
		Content: "  ",
		Elapsed: 80 * time.Millisecond,
	})

	var record models.CallRecord
	require.NoError(t, database.DB.Where("user_id = ?", 7).First(&record).Error)
	assert.Equal(t, models.CallStatusEmptyResponse, record.Status)

	balance, err := CreditBalance(7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}
