package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

func TestAppendMessagePairKeepsGaplessSequence(t *testing.T) {
	setupTestDB()

	conversation, err := CreateConversation(1, nil, 1, "plot discussion")
	require.NoError(t, err)

	userMsg, assistantMsg, err := AppendMessagePair(conversation.ID, "How should the heist go wrong?")
	require.NoError(t, err)
	assert.Equal(t, 1, userMsg.SequenceNumber)
	assert.Equal(t, 2, assistantMsg.SequenceNumber)
	assert.Equal(t, models.MessageStatusProcessing, assistantMsg.Status)

	userMsg2, assistantMsg2, err := AppendMessagePair(conversation.ID, "And then?")
	require.NoError(t, err)
	assert.Equal(t, 3, userMsg2.SequenceNumber)
	assert.Equal(t, 4, assistantMsg2.SequenceNumber)
}

func TestAppendMessagePairUnknownConversation(t *testing.T) {
	setupTestDB()

	_, _, err := AppendMessagePair(42, "hello?")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestFinalizeMessageIsOneWay(t *testing.T) {
	setupTestDB()

	conversation, err := CreateConversation(1, nil, 1, "t")
	require.NoError(t, err)
	_, assistantMsg, err := AppendMessagePair(conversation.ID, "q")
	require.NoError(t, err)

	usage := &gateway.Usage{PromptTokens: 4, CompletionTokens: 8, TotalTokens: 12}
	require.NoError(t, FinalizeMessage(assistantMsg.ID, models.MessageStatusCompleted, "the answer", usage, 1500*time.Millisecond))

	var msg models.Message
	database.DB.First(&msg, assistantMsg.ID)
	assert.Equal(t, models.MessageStatusCompleted, msg.Status)
	assert.Equal(t, "the answer", msg.Content)
	assert.Equal(t, int64(1500), msg.ResponseTimeMs)

	// A second transition must not overwrite the terminal state.
	err = FinalizeMessage(assistantMsg.ID, models.MessageStatusFailed, "", nil, 0)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	database.DB.First(&msg, assistantMsg.ID)
	assert.Equal(t, models.MessageStatusCompleted, msg.Status)
	assert.Equal(t, "the answer", msg.Content)
}

func TestFindMessagesEnforcesOwnership(t *testing.T) {
	setupTestDB()

	conversation, err := CreateConversation(1, nil, 1, "mine")
	require.NoError(t, err)

	_, err = FindMessages(conversation.ID, 2)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestHistoryMessagesSkipsUnfinishedTurns(t *testing.T) {
	messages := []models.Message{
		{Role: gateway.RoleUser, Content: "q1", Status: models.MessageStatusCompleted},
		{Role: gateway.RoleAssistant, Content: "a1", Status: models.MessageStatusCompleted},
		{Role: gateway.RoleUser, Content: "q2", Status: models.MessageStatusCompleted},
		{Role: gateway.RoleAssistant, Content: "", Status: models.MessageStatusProcessing},
		{Role: gateway.RoleAssistant, Content: "partial", Status: models.MessageStatusCancelled},
	}

	history := HistoryMessages(messages)
	require.Len(t, history, 3)
	assert.Equal(t, "a1", history[1].Content)
	assert.Equal(t, "q2", history[2].Content)
}
