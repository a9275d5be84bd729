package model

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"novelcraft-backend/internal/models"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/internal/utils"
)

// PublicModel is the catalog view of a model. Endpoint, key, and retry
// tuning stay server-side.
type PublicModel struct {
	ID           uint                `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	ProviderKind models.ProviderKind `json:"provider_kind"`
	MaxTokens    int                 `json:"max_tokens"`
	CreditCost   int64               `json:"credit_cost"`
	IsDefault    bool                `json:"is_default"`
}

func toPublicModel(cfg models.ModelConfig) PublicModel {
	return PublicModel{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Description:  cfg.Description,
		ProviderKind: cfg.ProviderKind,
		MaxTokens:    cfg.MaxTokens,
		CreditCost:   cfg.CreditCost,
		IsDefault:    cfg.IsDefault,
	}
}

// ListModels godoc
// @Summary List models available for generation
// @Description Returns active, public models only. Upstream endpoints and keys are never exposed.
// @Tags model
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=[]PublicModel}
// @Router /models [get]
func ListModels(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	configs, total, err := services.FindModelConfigs(services.ModelConfigFilter{
		ActiveOnly: true,
		PublicOnly: true,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list models"))
		return
	}

	items := make([]PublicModel, 0, len(configs))
	for _, cfg := range configs {
		items = append(items, toPublicModel(cfg))
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": items, "total": total}))
}
