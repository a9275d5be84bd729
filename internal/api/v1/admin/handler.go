package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"novelcraft-backend/internal/middleware"
	"novelcraft-backend/internal/models"
	"novelcraft-backend/internal/services"
	"novelcraft-backend/internal/utils"
)

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid id"))
		return 0, false
	}
	return uint(id), true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// ListUsers godoc
// @Summary List all users
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Router /admin/users [get]
func ListUsers(c *gin.Context) {
	page, limit := pagination(c)
	users, total, err := services.FindUsers(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list users"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": users, "total": total}))
}

// UpdateUser godoc
// @Summary Update a user's role, nickname, or password
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /admin/users/{id} [put]
func UpdateUser(c *gin.Context) {
	operator, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Malformed JSON"))
		return
	}

	updates := map[string]interface{}{}
	for _, field := range []string{"nickname", "password", "role"} {
		if value, exists := input[field]; exists {
			updates[field] = value
		}
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Nothing to update"))
		return
	}

	user, err := services.UpdateUser(id, updates, operator.Username)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
		case errors.Is(err, services.ErrOptimisticLock):
			c.JSON(http.StatusConflict, utils.NewErrorResponse(http.StatusConflict, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to update user"))
		}
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("User updated", user))
}

// GetUserEntitlements godoc
// @Summary List a user's credit entitlements
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Router /admin/users/{id}/entitlements [get]
func GetUserEntitlements(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	entitlements, err := services.FindEntitlements(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load entitlements"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", entitlements))
}

type GrantEntitlementInput struct {
	UserID       uint   `json:"user_id" binding:"required"`
	Credits      int64  `json:"credits" binding:"required,gt=0"`
	DurationDays int    `json:"duration_days" binding:"required,gt=0"`
	PlanID       uint   `json:"plan_id"`
	Remark       string `json:"remark" binding:"max=255"`
}

// GrantEntitlement godoc
// @Summary Grant a credit entitlement directly
// @Description Issues a credit bucket outside the order flow, with an audit transaction.
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response{data=models.Entitlement}
// @Router /admin/entitlements [post]
func GrantEntitlement(c *gin.Context) {
	operator, _ := middleware.CurrentUser(c)

	var input GrantEntitlementInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	entitlement, err := services.GrantEntitlement(
		input.UserID, input.PlanID, input.Credits, input.DurationDays,
		input.Remark, operator.Username, operator.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to grant entitlement"))
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Entitlement granted", entitlement))
}

// CancelEntitlement godoc
// @Summary Cancel an entitlement, forfeiting its remaining credits
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /admin/entitlements/{id} [delete]
func CancelEntitlement(c *gin.Context) {
	operator, _ := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := services.CancelEntitlement(id, operator.Username, operator.ID); err != nil {
		if errors.Is(err, services.ErrEntitlementNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to cancel entitlement"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Entitlement cancelled", nil))
}

// ListOrders godoc
// @Summary List orders across all users
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param user_id query int false "Filter by user"
// @Param status query string false "Filter by status"
// @Success 200 {object} utils.Response
// @Router /admin/orders [get]
func ListOrders(c *gin.Context) {
	page, limit := pagination(c)
	filter := services.OrderFilter{Page: page, Limit: limit}

	if raw := c.Query("user_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			userID := uint(id)
			filter.UserID = &userID
		}
	}
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}
	if orderType := c.Query("order_type"); orderType != "" {
		filter.OrderType = &orderType
	}

	orders, total, err := services.FindOrders(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list orders"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": orders, "total": total}))
}

type ManualOrderInput struct {
	UserID uint   `json:"user_id" binding:"required"`
	PlanID uint   `json:"plan_id" binding:"required"`
	Remark string `json:"remark" binding:"max=255"`
}

// CreateManualOrder godoc
// @Summary Create a manual order on a user's behalf
// @Description Manual orders may reference disabled plans. Completing the order grants the credits.
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response
// @Router /admin/orders [post]
func CreateManualOrder(c *gin.Context) {
	var input ManualOrderInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	order, err := services.CreateOrder(input.UserID, input.PlanID, models.OrderTypeManual, input.Remark)
	if err != nil {
		if errors.Is(err, services.ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to create order"))
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Order created", order))
}

// CompleteOrder godoc
// @Summary Mark an order paid and grant its plan's credits
// @Description Atomic: the order flips to paid and the entitlement is issued in one transaction. Completing twice fails.
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /admin/orders/{id}/complete [post]
func CompleteOrder(c *gin.Context) {
	operator, _ := middleware.CurrentUser(c)

	err := services.CompleteOrder(c.Param("id"), operator.ID, operator.Username)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
		case errors.Is(err, services.ErrOrderAlreadyPaid), errors.Is(err, services.ErrOrderCancelled):
			c.JSON(http.StatusConflict, utils.NewErrorResponse(http.StatusConflict, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to complete order"))
		}
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Order completed", nil))
}

// CancelOrder godoc
// @Summary Cancel a pending order
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /admin/orders/{id}/cancel [post]
func CancelOrder(c *gin.Context) {
	err := services.CancelOrder(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
		case errors.Is(err, services.ErrInvalidOrderStatus):
			c.JSON(http.StatusConflict, utils.NewErrorResponse(http.StatusConflict, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to cancel order"))
		}
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Order cancelled", nil))
}

func transactionFilter(c *gin.Context) services.TransactionFilter {
	page, limit := pagination(c)
	filter := services.TransactionFilter{Page: page, Limit: limit}

	if raw := c.Query("user_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			userID := uint(id)
			filter.UserID = &userID
		}
	}
	if raw := c.Query("type"); raw != "" {
		t := models.TransactionType(raw)
		filter.Type = &t
	}
	if raw := c.Query("start_time"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.StartTime = &t
		}
	}
	if raw := c.Query("end_time"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.EndTime = &t
		}
	}
	return filter
}

// ListTransactions godoc
// @Summary List credit transactions
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param user_id query int false "Filter by user"
// @Param type query string false "Filter by transaction type"
// @Success 200 {object} utils.Response
// @Router /admin/transactions [get]
func ListTransactions(c *gin.Context) {
	transactions, total, err := services.FindTransactions(transactionFilter(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list transactions"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": transactions, "total": total}))
}

// ExportTransactions godoc
// @Summary Export credit transactions as CSV
// @Tags admin
// @Produce text/csv
// @Security ApiKeyAuth
// @Router /admin/transactions/export [get]
func ExportTransactions(c *gin.Context) {
	filter := transactionFilter(c)
	filter.Page = 1
	filter.Limit = 10000

	transactions, _, err := services.FindTransactions(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load transactions"))
		return
	}

	data, err := services.GenerateTransactionCSV(transactions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to generate CSV"))
		return
	}

	filename := fmt.Sprintf("transactions-%s.csv", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", data)
}

type ModelConfigInput struct {
	Name          string  `json:"name" binding:"required,max=100"`
	Description   string  `json:"description"`
	ProviderKind  string  `json:"provider_kind" binding:"required,oneof=openai gemini"`
	Endpoint      string  `json:"endpoint" binding:"required,url"`
	APIKey        string  `json:"api_key" binding:"required"`
	UpstreamModel string  `json:"upstream_model" binding:"required"`
	MaxTokens     int     `json:"max_tokens" binding:"omitempty,gt=0"`
	Temperature   float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopP          float64 `json:"top_p" binding:"omitempty,gt=0,lte=1"`

	TimeoutSeconds int    `json:"timeout_seconds" binding:"omitempty,gt=0"`
	TimeoutClass   string `json:"timeout_class" binding:"omitempty,oneof=standard extended"`
	RetryCount     int    `json:"retry_count" binding:"omitempty,gte=0,lte=10"`
	CreditCost     int64  `json:"credit_cost" binding:"omitempty,gt=0"`

	IsActive  *bool `json:"is_active"`
	IsDefault bool  `json:"is_default"`
	IsPublic  *bool `json:"is_public"`
	Priority  int   `json:"priority"`
}

func (in ModelConfigInput) apply(cfg *models.ModelConfig) {
	cfg.Name = in.Name
	cfg.Description = in.Description
	cfg.ProviderKind = models.ProviderKind(in.ProviderKind)
	cfg.Endpoint = in.Endpoint
	cfg.APIKey = in.APIKey
	cfg.UpstreamModel = in.UpstreamModel
	cfg.IsDefault = in.IsDefault
	cfg.Priority = in.Priority

	if in.MaxTokens > 0 {
		cfg.MaxTokens = in.MaxTokens
	}
	if in.Temperature > 0 {
		cfg.Temperature = in.Temperature
	}
	if in.TopP > 0 {
		cfg.TopP = in.TopP
	}
	if in.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = in.TimeoutSeconds
	}
	if in.TimeoutClass != "" {
		cfg.TimeoutClass = models.TimeoutClass(in.TimeoutClass)
	}
	if in.RetryCount > 0 {
		cfg.RetryCount = in.RetryCount
	}
	if in.CreditCost > 0 {
		cfg.CreditCost = in.CreditCost
	}
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}
	if in.IsPublic != nil {
		cfg.IsPublic = *in.IsPublic
	}
}

// ListModels godoc
// @Summary List model configurations, including inactive and private ones
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Router /admin/models [get]
func ListModels(c *gin.Context) {
	page, limit := pagination(c)
	configs, total, err := services.FindModelConfigs(services.ModelConfigFilter{
		Name:         c.Query("name"),
		ProviderKind: c.Query("provider_kind"),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list models"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": configs, "total": total}))
}

// CreateModel godoc
// @Summary Create a model configuration
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response{data=models.ModelConfig}
// @Router /admin/models [post]
func CreateModel(c *gin.Context) {
	var input ModelConfigInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	cfg := models.ModelConfig{
		MaxTokens:      4096,
		Temperature:    0.7,
		TopP:           1,
		TimeoutSeconds: 120,
		TimeoutClass:   models.TimeoutClassStandard,
		RetryCount:     2,
		CreditCost:     1,
		IsActive:       true,
		IsPublic:       true,
	}
	input.apply(&cfg)

	if err := services.CreateModelConfig(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Model created", cfg))
}

// UpdateModel godoc
// @Summary Update a model configuration
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=models.ModelConfig}
// @Failure 404 {object} utils.Response
// @Router /admin/models/{id} [put]
func UpdateModel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input ModelConfigInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	cfg, err := services.GetModelConfigByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Model not found"))
		return
	}

	input.apply(cfg)
	if err := services.UpdateModelConfig(cfg); err != nil {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Model updated", cfg))
}

// DeleteModel godoc
// @Summary Delete a model configuration
// @Tags admin
// @Security ApiKeyAuth
// @Router /admin/models/{id} [delete]
func DeleteModel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := services.DeleteModelConfig(id); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to delete model"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Model deleted", nil))
}

type SetModelActiveInput struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetModelActive godoc
// @Summary Activate or deactivate a model
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Router /admin/models/{id}/active [patch]
func SetModelActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input SetModelActiveInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	if err := services.SetModelActive(id, *input.IsActive); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to update model"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Model updated", nil))
}

type PlanInput struct {
	Name         string  `json:"name" binding:"required,max=100"`
	Credits      int64   `json:"credits" binding:"required,gt=0"`
	DurationDays int     `json:"duration_days" binding:"required,gt=0"`
	Price        float64 `json:"price" binding:"gte=0"`
	Enable       *bool   `json:"enable"`
}

// ListPlans godoc
// @Summary List membership plans, including disabled ones
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Router /admin/plans [get]
func ListPlans(c *gin.Context) {
	plans, err := services.FindMembershipPlans(false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list plans"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", plans))
}

// CreatePlan godoc
// @Summary Create a membership plan
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response{data=models.MembershipPlan}
// @Router /admin/plans [post]
func CreatePlan(c *gin.Context) {
	var input PlanInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	plan := models.MembershipPlan{
		Name:         input.Name,
		Credits:      input.Credits,
		DurationDays: input.DurationDays,
		Price:        input.Price,
		Enable:       true,
	}
	if input.Enable != nil {
		plan.Enable = *input.Enable
	}

	if err := services.CreateMembershipPlan(&plan); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to create plan"))
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Plan created", plan))
}

// UpdatePlan godoc
// @Summary Update a membership plan
// @Tags admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Failure 404 {object} utils.Response
// @Router /admin/plans/{id} [put]
func UpdatePlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input PlanInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	plan, err := services.GetMembershipPlanByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, "Plan not found"))
		return
	}

	plan.Name = input.Name
	plan.Credits = input.Credits
	plan.DurationDays = input.DurationDays
	plan.Price = input.Price
	if input.Enable != nil {
		plan.Enable = *input.Enable
	}

	if err := services.UpdateMembershipPlan(plan); err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to update plan"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Plan updated", plan))
}

// ListCallRecords godoc
// @Summary List AI call records across all users
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param user_id query int false "Filter by user"
// @Success 200 {object} utils.Response
// @Router /admin/records [get]
func ListCallRecords(c *gin.Context) {
	page, limit := pagination(c)
	filter := services.CallRecordFilter{
		BusinessType: c.Query("business_type"),
		Status:       c.Query("status"),
		Page:         page,
		Limit:        limit,
	}
	if raw := c.Query("user_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.UserID = uint(id)
		}
	}

	records, total, err := services.FindCallRecords(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list call records"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": records, "total": total}))
}
