package services

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

// CallRecordInput carries everything the audit trail captures about one
// logical AI call.
type CallRecordInput struct {
	UserID       uint
	BusinessType string
	Model        *models.ModelConfig
	PromptID     *uint
	SystemPrompt string
	UserPrompt   string
	Params       gateway.CallParams

	Status  models.CallStatus
	Content string
	Usage   *gateway.Usage
	Elapsed time.Duration
	CallErr error
}

// RecordCall writes the audit row for one call. Best-effort: a write
// failure is logged and swallowed, it must never affect the call outcome.
func RecordCall(input CallRecordInput) {
	record := models.CallRecord{
		UserID:         input.UserID,
		BusinessType:   input.BusinessType,
		SystemPrompt:   input.SystemPrompt,
		UserPrompt:     input.UserPrompt,
		PromptID:       input.PromptID,
		Status:         input.Status,
		ResponseTimeMs: input.Elapsed.Milliseconds(),
	}

	if input.Model != nil {
		record.ModelID = input.Model.ID
		record.ModelName = input.Model.Name
	}
	if input.Content != "" {
		content := input.Content
		record.ResponseContent = &content
	}
	if input.CallErr != nil {
		record.ErrorMessage = input.CallErr.Error()
	}

	params := map[string]interface{}{}
	if input.Params.Temperature != nil {
		params["temperature"] = *input.Params.Temperature
	}
	if input.Params.TopP != nil {
		params["top_p"] = *input.Params.TopP
	}
	if input.Params.MaxTokens != nil {
		params["max_tokens"] = *input.Params.MaxTokens
	}
	if len(params) > 0 {
		if data, err := json.Marshal(params); err == nil {
			record.RequestParams = datatypes.JSON(data)
		}
	}
	if input.Usage != nil {
		if data, err := json.Marshal(input.Usage); err == nil {
			record.TokenUsage = datatypes.JSON(data)
		}
	}

	if err := database.DB.Create(&record).Error; err != nil {
		zap.L().Error("failed to write call record",
			zap.Uint("user_id", input.UserID),
			zap.String("business_type", input.BusinessType),
			zap.String("status", string(input.Status)),
			zap.Error(err))
	}
}

type CallRecordFilter struct {
	UserID       uint
	BusinessType string
	Status       string
	StartTime    *time.Time
	EndTime      *time.Time
	Page         int
	Limit        int
}

// FindCallRecords retrieves a paginated list of call records with filtering.
func FindCallRecords(filter CallRecordFilter) ([]models.CallRecord, int64, error) {
	var records []models.CallRecord
	var total int64

	query := database.DB.Model(&models.CallRecord{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.BusinessType != "" {
		query = query.Where("business_type = ?", filter.BusinessType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at desc").Limit(filter.Limit).Offset(offset).Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
