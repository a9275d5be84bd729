package models

import (
	"time"

	"gorm.io/datatypes"
)

type EntitlementStatus string

const (
	EntitlementStatusActive    EntitlementStatus = "active"
	EntitlementStatusExpired   EntitlementStatus = "expired"
	EntitlementStatusExhausted EntitlementStatus = "exhausted"
	EntitlementStatusCancelled EntitlementStatus = "cancelled"
)

// Entitlement is one issued grant of call credits to a user. A user may hold
// several at once (stacked purchases); consumption drains the one closest to
// expiry first so paid credits are never lost to unlucky timing.
//
// Invariants: 0 <= RemainingCredits <= Credits; a row is consumable only
// while Status is active.
type Entitlement struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID           uint              `gorm:"index;not null" json:"user_id"`
	PlanID           uint              `gorm:"index" json:"plan_id"`
	Credits          int64             `gorm:"not null" json:"credits"`
	RemainingCredits int64             `gorm:"not null" json:"remaining_credits"`
	StartDate        time.Time         `gorm:"not null" json:"start_date"`
	EndDate          time.Time         `gorm:"index;not null" json:"end_date"`
	Status           EntitlementStatus `gorm:"type:varchar(20);index;not null;default:'active'" json:"status"`
	Remark           string            `json:"remark"`
}

// MembershipPlan describes a purchasable credit package.
type MembershipPlan struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name         string         `gorm:"not null" json:"name"`
	Credits      int64          `gorm:"not null" json:"credits"`
	DurationDays int            `gorm:"not null;default:30" json:"duration_days"`
	Price        float64        `gorm:"type:decimal(20,2);not null" json:"price"`
	Perks        datatypes.JSON `gorm:"type:json" json:"perks" swaggertype:"object"`
	Enable       bool           `gorm:"default:true" json:"enable"`
}
