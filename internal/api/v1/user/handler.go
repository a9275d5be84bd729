package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"novelcraft-backend/internal/middleware"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/internal/utils"
)

type ProfileResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
	Credits  int64  `json:"credits"`
}

// GetProfile godoc
// @Summary Get the current user's profile
// @Tags user
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=ProfileResponse}
// @Failure 401 {object} utils.Response
// @Router /user/profile [get]
func GetProfile(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Not authenticated"))
		return
	}

	credits, err := services.CreditBalance(u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load credit balance"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", ProfileResponse{
		ID:       u.ID,
		Username: u.Username,
		Nickname: u.Nickname,
		Role:     u.Role,
		Credits:  credits,
	}))
}

type UpdateProfileInput struct {
	Nickname *string `json:"nickname" binding:"omitempty,max=50"`
	Password *string `json:"password" binding:"omitempty,min=6"`
}

// UpdateProfile godoc
// @Summary Update the current user's profile
// @Tags user
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /user/profile [put]
func UpdateProfile(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Not authenticated"))
		return
	}

	var input UpdateProfileInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	updates := map[string]interface{}{}
	if input.Nickname != nil {
		updates["nickname"] = *input.Nickname
	}
	if input.Password != nil {
		updates["password"] = *input.Password
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Nothing to update"))
		return
	}

	updated, err := services.UpdateUser(u.ID, updates, u.Username)
	if err != nil {
		if errors.Is(err, services.ErrOptimisticLock) {
			c.JSON(http.StatusConflict, utils.NewErrorResponse(http.StatusConflict, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to update profile"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Profile updated", ProfileResponse{
		ID:       updated.ID,
		Username: updated.Username,
		Nickname: updated.Nickname,
		Role:     updated.Role,
	}))
}

// GetEntitlements godoc
// @Summary List the current user's credit entitlements
// @Tags user
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Router /user/entitlements [get]
func GetEntitlements(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Not authenticated"))
		return
	}

	entitlements, err := services.FindEntitlements(u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load entitlements"))
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", entitlements))
}
