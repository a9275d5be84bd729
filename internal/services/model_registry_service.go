package services

import (
	"strconv"
	"time"

	"gorm.io/gorm"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

type ModelConfigFilter struct {
	Name         string
	ProviderKind string
	ActiveOnly   bool
	PublicOnly   bool
	Page         int
	Limit        int
}

// FindModelConfigs retrieves a paginated list of model configurations with
// filtering.
func FindModelConfigs(filter ModelConfigFilter) ([]models.ModelConfig, int64, error) {
	var configs []models.ModelConfig
	var total int64

	query := database.DB.Model(&models.ModelConfig{})

	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.ProviderKind != "" {
		query = query.Where("provider_kind = ?", filter.ProviderKind)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.PublicOnly {
		query = query.Where("is_public = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("priority desc, id asc").Limit(filter.Limit).Offset(offset).Find(&configs).Error; err != nil {
		return nil, 0, err
	}

	return configs, total, nil
}

// ResolveModel finds the active model configuration a call should use. The
// reference may be a numeric id or a configured name; an empty reference
// selects the default model (is_default first, then highest priority).
func ResolveModel(ref string) (*models.ModelConfig, error) {
	var cfg models.ModelConfig

	if ref == "" {
		err := database.DB.
			Where("is_active = ?", true).
			Order("is_default desc, priority desc, id asc").
			First(&cfg).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, gateway.ErrModelNotFound
			}
			return nil, err
		}
		return &cfg, nil
	}

	query := database.DB.Where("is_active = ?", true)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		query = query.Where("id = ?", uint(id))
	} else {
		query = query.Where("name = ?", ref)
	}

	if err := query.First(&cfg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, gateway.ErrModelNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// TouchModelUsage bumps the usage counter after a billed call. Best-effort:
// a failed update never affects the call result.
func TouchModelUsage(modelID uint) error {
	now := time.Now()
	return database.DB.Model(&models.ModelConfig{}).
		Where("id = ?", modelID).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": now,
		}).Error
}

// CreateModelConfig registers a new model.
func CreateModelConfig(cfg *models.ModelConfig) error {
	if _, err := gateway.AdapterFor(cfg.ProviderKind); err != nil {
		return err
	}
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if cfg.IsDefault {
			if err := clearDefaultModel(tx); err != nil {
				return err
			}
		}
		return tx.Create(cfg).Error
	})
}

// UpdateModelConfig saves changes to an existing model.
func UpdateModelConfig(cfg *models.ModelConfig) error {
	if _, err := gateway.AdapterFor(cfg.ProviderKind); err != nil {
		return err
	}
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if cfg.IsDefault {
			if err := clearDefaultModel(tx); err != nil {
				return err
			}
		}
		return tx.Save(cfg).Error
	})
}

// clearDefaultModel keeps at most one default: promoting a model demotes
// whichever previously held the flag.
func clearDefaultModel(tx *gorm.DB) error {
	return tx.Model(&models.ModelConfig{}).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}

// GetModelConfigByID retrieves a model by id.
func GetModelConfigByID(id uint) (*models.ModelConfig, error) {
	var cfg models.ModelConfig
	if err := database.DB.First(&cfg, id).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteModelConfig removes a model configuration. Existing call records
// keep the model name they captured at call time.
func DeleteModelConfig(id uint) error {
	return database.DB.Delete(&models.ModelConfig{}, id).Error
}

// SetModelActive toggles whether a model accepts new calls.
func SetModelActive(id uint, active bool) error {
	return database.DB.Model(&models.ModelConfig{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}
