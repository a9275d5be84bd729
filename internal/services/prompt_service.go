package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/models"
)

const (
	promptCacheKeyPrefix = "prompt:id:"
	promptCacheDuration  = 24 * time.Hour
)

var ErrPromptNotFound = errors.New("prompt not found")

// CreatePrompt saves a new prompt for a user (UserID 0 is built-in).
func CreatePrompt(prompt *models.Prompt) error {
	return database.DB.Create(prompt).Error
}

// GetPromptByID retrieves a prompt usable by the given user: their own, a
// built-in, or a public one. Cached, since prompts back every generation
// request.
func GetPromptByID(promptID, userID uint) (*models.Prompt, error) {
	cacheKey := fmt.Sprintf("%s%d", promptCacheKeyPrefix, promptID)

	if database.RedisClient != nil {
		val, err := database.RedisClient.Get(database.Ctx, cacheKey).Result()
		if err == nil {
			var prompt models.Prompt
			if err := json.Unmarshal([]byte(val), &prompt); err == nil {
				if promptVisibleTo(&prompt, userID) {
					return &prompt, nil
				}
				return nil, ErrPromptNotFound
			}
		}
	}

	var prompt models.Prompt
	if err := database.DB.First(&prompt, promptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, err
	}

	if database.RedisClient != nil {
		if data, err := json.Marshal(prompt); err == nil {
			database.RedisClient.Set(database.Ctx, cacheKey, data, promptCacheDuration)
		}
	}

	if !promptVisibleTo(&prompt, userID) {
		return nil, ErrPromptNotFound
	}
	return &prompt, nil
}

func promptVisibleTo(prompt *models.Prompt, userID uint) bool {
	return prompt.UserID == 0 || prompt.UserID == userID || prompt.IsPublic
}

// FindPrompts lists the prompts visible to a user: built-ins, their own,
// and public prompts, optionally filtered by category.
func FindPrompts(userID uint, category string, page, limit int) ([]models.Prompt, int64, error) {
	var prompts []models.Prompt
	var total int64

	query := database.DB.Model(&models.Prompt{}).
		Where("user_id = 0 OR user_id = ? OR is_public = ?", userID, true)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("user_id asc, created_at desc").Limit(limit).Offset(offset).Find(&prompts).Error; err != nil {
		return nil, 0, err
	}

	return prompts, total, nil
}

// UpdatePrompt edits a prompt the user owns.
func UpdatePrompt(promptID, userID uint, updates map[string]interface{}) (*models.Prompt, error) {
	var prompt models.Prompt
	if err := database.DB.Where("id = ? AND user_id = ?", promptID, userID).First(&prompt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, err
	}

	if err := database.DB.Model(&prompt).Updates(updates).Error; err != nil {
		return nil, err
	}

	invalidatePromptCache(promptID)
	return &prompt, nil
}

// DeletePrompt removes a prompt the user owns.
func DeletePrompt(promptID, userID uint) error {
	result := database.DB.Where("id = ? AND user_id = ?", promptID, userID).Delete(&models.Prompt{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPromptNotFound
	}

	invalidatePromptCache(promptID)
	return nil
}

func invalidatePromptCache(promptID uint) {
	if database.RedisClient != nil {
		cacheKey := fmt.Sprintf("%s%d", promptCacheKeyPrefix, promptID)
		database.RedisClient.Del(database.Ctx, cacheKey)
	}
}
