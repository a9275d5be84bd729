package prompt

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"novelcraft-backend/internal/middleware"
	"novelcraft-backend/internal/models"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/internal/utils"
)

type PromptInput struct {
	Category string `json:"category" binding:"max=50"`
	Title    string `json:"title" binding:"required,max=200"`
	Content  string `json:"content" binding:"required"`
	IsPublic bool   `json:"is_public"`
}

// ListPrompts godoc
// @Summary List prompts visible to the current user
// @Description Returns built-in prompts, the user's own prompts, and public prompts shared by others.
// @Tags prompt
// @Produce json
// @Security ApiKeyAuth
// @Param category query string false "Filter by category"
// @Success 200 {object} utils.Response
// @Router /prompts [get]
func ListPrompts(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	prompts, total, err := services.FindPrompts(u.ID, c.Query("category"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list prompts"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": prompts, "total": total}))
}

// GetPrompt godoc
// @Summary Get one prompt
// @Tags prompt
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=models.Prompt}
// @Failure 404 {object} utils.Response
// @Router /prompts/{id} [get]
func GetPrompt(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return
	}

	prompt, err := services.GetPromptByID(uint(id), u.ID)
	if err != nil {
		if errors.Is(err, services.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load prompt"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", prompt))
}

// CreatePrompt godoc
// @Summary Create a prompt
// @Tags prompt
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response{data=models.Prompt}
// @Failure 400 {object} utils.Response
// @Router /prompts [post]
func CreatePrompt(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var input PromptInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	prompt := models.Prompt{
		UserID:   u.ID,
		Category: input.Category,
		Title:    input.Title,
		Content:  input.Content,
		IsPublic: input.IsPublic,
	}
	if err := services.CreatePrompt(&prompt); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to create prompt"))
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Prompt created", prompt))
}

// UpdatePrompt godoc
// @Summary Update one of the current user's prompts
// @Tags prompt
// @Security ApiKeyAuth
// @Router /prompts/{id} [put]
func UpdatePrompt(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return
	}

	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Malformed JSON"))
		return
	}

	updates := map[string]interface{}{}
	for _, field := range []string{"category", "title", "content", "is_public"} {
		if value, exists := input[field]; exists {
			updates[field] = value
		}
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Nothing to update"))
		return
	}

	prompt, err := services.UpdatePrompt(uint(id), u.ID, updates)
	if err != nil {
		if errors.Is(err, services.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to update prompt"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Prompt updated", prompt))
}

// DeletePrompt godoc
// @Summary Delete one of the current user's prompts
// @Tags prompt
// @Security ApiKeyAuth
// @Router /prompts/{id} [delete]
func DeletePrompt(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return
	}

	if err := services.DeletePrompt(uint(id), u.ID); err != nil {
		if errors.Is(err, services.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to delete prompt"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Prompt deleted", nil))
}
