package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/models"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyPaid   = errors.New("order already paid")
	ErrOrderCancelled     = errors.New("order has been cancelled")
	ErrInvalidOrderStatus = errors.New("invalid order status for this operation")
	ErrPlanNotFound       = errors.New("membership plan not found")
	ErrPlanDisabled       = errors.New("membership plan is not available")
)

// OrderFilter defines criteria for filtering orders.
type OrderFilter struct {
	UserID    *uint
	Status    *string
	OrderType *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	Limit     int
}

// FindMembershipPlans lists plans; enabledOnly hides retired plans from the
// storefront while keeping them for the admin view.
func FindMembershipPlans(enabledOnly bool) ([]models.MembershipPlan, error) {
	var plans []models.MembershipPlan
	query := database.DB.Model(&models.MembershipPlan{})
	if enabledOnly {
		query = query.Where("enable = ?", true)
	}
	err := query.Order("price asc").Find(&plans).Error
	return plans, err
}

func GetMembershipPlanByID(planID uint) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	if err := database.DB.First(&plan, planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func CreateMembershipPlan(plan *models.MembershipPlan) error {
	return database.DB.Create(plan).Error
}

func UpdateMembershipPlan(plan *models.MembershipPlan) error {
	return database.DB.Save(plan).Error
}

// CreateOrder opens a pending order for a plan purchase.
func CreateOrder(userID, planID uint, orderType, remark string) (*models.PaymentOrderRecord, error) {
	plan, err := GetMembershipPlanByID(planID)
	if err != nil {
		return nil, err
	}
	if !plan.Enable && orderType != models.OrderTypeManual {
		return nil, ErrPlanDisabled
	}

	order := &models.PaymentOrderRecord{
		ID:        strings.ReplaceAll(uuid.New().String(), "-", ""),
		UserID:    userID,
		PlanID:    planID,
		Amount:    plan.Price,
		Status:    models.OrderStatusPending,
		OrderType: orderType,
		Remark:    remark,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := database.DB.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// CompleteOrder marks an order paid and grants the plan's entitlement. Safe
// to call twice (payment callback racing an admin confirmation): the second
// caller sees ErrOrderAlreadyPaid and nothing is granted again.
func CompleteOrder(orderID string, operatorID uint, operatorName string) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		var order models.PaymentOrderRecord
		if err := lockForUpdate(tx).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		if order.Status == models.OrderStatusPaid {
			return ErrOrderAlreadyPaid
		}
		if order.Status == models.OrderStatusCancelled {
			return ErrOrderCancelled
		}

		var plan models.MembershipPlan
		if err := tx.First(&plan, order.PlanID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlanNotFound
			}
			return err
		}

		now := time.Now()
		order.Status = models.OrderStatusPaid
		order.CompletedAt = &now
		order.CompletedBy = operatorID
		order.UpdatedAt = now
		if err := tx.Save(&order).Error; err != nil {
			return err
		}

		remark := fmt.Sprintf("order %s: plan %s", order.ID, plan.Name)
		_, err := grantEntitlementTx(tx, order.UserID, plan.ID, plan.Credits, plan.DurationDays, remark, operatorName, operatorID)
		return err
	})
}

// CancelOrder cancels a pending order.
func CancelOrder(orderID string) error {
	var order models.PaymentOrderRecord
	if err := database.DB.First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	if order.Status != models.OrderStatusPending {
		return ErrInvalidOrderStatus
	}

	return database.DB.Model(&order).Updates(map[string]interface{}{
		"status":     models.OrderStatusCancelled,
		"updated_at": time.Now(),
	}).Error
}

// FindOrders queries orders with filtering.
func FindOrders(filter OrderFilter) ([]models.PaymentOrderRecord, int64, error) {
	var orders []models.PaymentOrderRecord
	var total int64

	query := database.DB.Model(&models.PaymentOrderRecord{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.OrderType != nil {
		query = query.Where("order_type = ?", *filter.OrderType)
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
	if err := query.Order("created_at desc").Limit(filter.Limit).Offset(offset).Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// GetOrderByID retrieves an order by id.
func GetOrderByID(orderID string) (*models.PaymentOrderRecord, error) {
	var order models.PaymentOrderRecord
	if err := database.DB.First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}
