package services

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// CreateConversation starts a new chat thread for a user.
func CreateConversation(userID uint, novelID *uint, modelID uint, title string) (*models.Conversation, error) {
	conversation := &models.Conversation{
		UserID:  userID,
		NovelID: novelID,
		ModelID: modelID,
		Title:   title,
	}
	if err := database.DB.Create(conversation).Error; err != nil {
		return nil, err
	}
	return conversation, nil
}

// GetConversation loads a conversation, enforcing ownership.
func GetConversation(conversationID, userID uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := database.DB.Where("id = ? AND user_id = ?", conversationID, userID).First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

// FindConversations lists a user's conversations, most recently updated
// first.
func FindConversations(userID uint, page, limit int) ([]models.Conversation, int64, error) {
	var conversations []models.Conversation
	var total int64

	query := database.DB.Model(&models.Conversation{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("updated_at desc").Limit(limit).Offset(offset).Find(&conversations).Error; err != nil {
		return nil, 0, err
	}
	return conversations, total, nil
}

// FindMessages returns a conversation's messages in sequence order.
func FindMessages(conversationID, userID uint) ([]models.Message, error) {
	if _, err := GetConversation(conversationID, userID); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := database.DB.Where("conversation_id = ?", conversationID).
		Order("sequence_number asc").
		Find(&messages).Error
	return messages, err
}

// DeleteConversation removes a conversation and its messages.
func DeleteConversation(conversationID, userID uint) error {
	if _, err := GetConversation(conversationID, userID); err != nil {
		return err
	}
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Conversation{}, conversationID).Error
	})
}

// nextSequenceNumber allocates the next gapless sequence number within a
// conversation. Must run inside a transaction holding the conversation row
// so concurrent appends cannot collide.
func nextSequenceNumber(tx *gorm.DB, conversationID uint) (int, error) {
	var max int
	err := tx.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&max).Error
	return max + 1, err
}

// AppendMessagePair adds the user's message and a placeholder assistant
// message (processing state) with consecutive sequence numbers. Both rows
// commit together so a crash can never leave a user message without its
// assistant slot.
func AppendMessagePair(conversationID uint, userContent string) (*models.Message, *models.Message, error) {
	var userMsg, assistantMsg models.Message

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var conversation models.Conversation
		if err := lockForUpdate(tx).First(&conversation, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}

		seq, err := nextSequenceNumber(tx, conversationID)
		if err != nil {
			return err
		}

		userMsg = models.Message{
			ConversationID: conversationID,
			SequenceNumber: seq,
			Role:           gateway.RoleUser,
			Content:        userContent,
			Status:         models.MessageStatusCompleted,
		}
		if err := tx.Create(&userMsg).Error; err != nil {
			return err
		}

		assistantMsg = models.Message{
			ConversationID: conversationID,
			SequenceNumber: seq + 1,
			Role:           gateway.RoleAssistant,
			Status:         models.MessageStatusProcessing,
		}
		if err := tx.Create(&assistantMsg).Error; err != nil {
			return err
		}

		// Bump the conversation so the list endpoint surfaces it first.
		return tx.Model(&conversation).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &userMsg, &assistantMsg, nil
}

// FinalizeMessage transitions an assistant message out of processing. The
// transition is one-way: a message already in a terminal state is left
// untouched.
func FinalizeMessage(messageID uint, status models.MessageStatus, content string, usage *gateway.Usage, elapsed time.Duration) error {
	updates := map[string]interface{}{
		"status":           status,
		"content":          content,
		"response_time_ms": elapsed.Milliseconds(),
	}
	if usage != nil {
		if data, err := json.Marshal(usage); err == nil {
			updates["token_usage"] = datatypes.JSON(data)
		}
	}

	result := database.DB.Model(&models.Message{}).
		Where("id = ? AND status = ?", messageID, models.MessageStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// HistoryMessages converts stored messages into canonical chat messages for
// the next call, skipping unfinished or failed assistant turns.
func HistoryMessages(messages []models.Message) []gateway.Message {
	history := make([]gateway.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == gateway.RoleAssistant && m.Status != models.MessageStatusCompleted {
			continue
		}
		if m.Content == "" {
			continue
		}
		history = append(history, gateway.Message{Role: m.Role, Content: m.Content})
	}
	return history
}
