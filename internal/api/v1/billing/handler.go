package billing

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

// ListPlans godoc
// @Summary List membership plans available for purchase
// @Tags billing
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response{data=[]models.MembershipPlan}
// @Router /billing/plans [get]
func ListPlans(c *gin.Context) {
	plans, err := services.FindMembershipPlans(true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list plans"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", plans))
}

type CreateOrderInput struct {
	PlanID uint   `json:"plan_id" binding:"required"`
	Remark string `json:"remark" binding:"max=255"`
}

// CreateOrder godoc
// @Summary Create a pending purchase order for a plan
// @Description Credits are granted when the order is completed by an operator, not at creation.
// @Tags billing
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /billing/orders [post]
func CreateOrder(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var input CreateOrderInput
	if !utils.BindAndValidate(c, &input) {
		return
	}

	order, err := services.CreateOrder(u.ID, input.PlanID, models.OrderTypePayment, input.Remark)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPlanNotFound):
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
		case errors.Is(err, services.ErrPlanDisabled):
			c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to create order"))
		}
		return
	}
	c.JSON(http.StatusCreated, utils.NewSuccessResponse("Order created", order))
}

// ListOrders godoc
// @Summary List the current user's orders
// @Tags billing
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "Filter by order status"
// @Success 200 {object} utils.Response
// @Router /billing/orders [get]
func ListOrders(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := services.OrderFilter{UserID: &u.ID, Page: page, Limit: limit}
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}

	orders, total, err := services.FindOrders(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to list orders"))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", gin.H{"items": orders, "total": total}))
}

// GetOrder godoc
// @Summary Get one of the current user's orders
// @Tags billing
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /billing/orders/{id} [get]
func GetOrder(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	order, err := services.GetOrderByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.NewErrorResponse(http.StatusInternalServerError, "Failed to load order"))
		return
	}
	if order.UserID != u.ID {
		c.JSON(http.StatusNotFound, utils.NewErrorResponse(http.StatusNotFound, services.ErrOrderNotFound.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("OK", order))
}
