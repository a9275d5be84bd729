package services

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novelcraft-backend/config"
	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

var ErrEntitlementNotFound = errors.New("entitlement not found")

// lockForUpdate takes row locks where the dialect has them. sqlite (tests)
// has a single-writer model instead, so the clause is skipped there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func ledgerSecret() string {
	cfg, _ := config.LoadConfig()
	secret := "default-secret"
	if cfg != nil && cfg.LedgerSecret != "" {
		secret = cfg.LedgerSecret
	}
	return secret
}

// eligibleEntitlements scopes a query to the rows that may fund a call:
// active and not yet past their end date. Expired-but-unswept rows are
// excluded here so the sweeper is a bookkeeping convenience, not a
// correctness requirement.
func eligibleEntitlements(tx *gorm.DB, userID uint, now time.Time) *gorm.DB {
	return tx.Model(&models.Entitlement{}).
		Where("user_id = ? AND status = ? AND end_date >= ?", userID, models.EntitlementStatusActive, now)
}

// CreditBalance returns the user's total spendable credits across all
// eligible entitlements.
func CreditBalance(userID uint) (int64, error) {
	var total int64
	err := eligibleEntitlements(database.DB, userID, time.Now()).
		Select("COALESCE(SUM(remaining_credits), 0)").
		Scan(&total).Error
	return total, err
}

// CanConsume reports whether the user could fund a charge of the given
// amount right now. Used as a pre-flight check so unfunded calls never
// reach the provider.
func CanConsume(userID uint, amount int64) (bool, error) {
	balance, err := CreditBalance(userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// ConsumeCredits debits the user by draining eligible entitlements in order
// of soonest expiry. The debit is all-or-nothing: either every touched row
// and the audit transaction commit together, or nothing changes.
func ConsumeCredits(userID uint, amount int64, reason, operator string) error {
	if amount <= 0 {
		return nil
	}

	return database.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		var entitlements []models.Entitlement
		if err := lockForUpdate(tx).
			Where("user_id = ? AND status = ? AND end_date >= ?", userID, models.EntitlementStatusActive, now).
			Order("end_date asc, id asc").
			Find(&entitlements).Error; err != nil {
			return err
		}

		var available int64
		for _, e := range entitlements {
			available += e.RemainingCredits
		}
		if available < amount {
			return gateway.ErrInsufficientCredits
		}

		remaining := amount
		for i := range entitlements {
			if remaining == 0 {
				break
			}
			e := &entitlements[i]
			take := e.RemainingCredits
			if take > remaining {
				take = remaining
			}
			e.RemainingCredits -= take
			remaining -= take
			if e.RemainingCredits == 0 {
				e.Status = models.EntitlementStatusExhausted
			}
			if err := tx.Save(e).Error; err != nil {
				return err
			}
		}

		txn := models.Transaction{
			UserID:        userID,
			Amount:        -amount,
			BalanceBefore: available,
			BalanceAfter:  available - amount,
			Reason:        reason,
			Operator:      operator,
			Type:          models.TransactionTypeCreditConsume,
			CreatedAt:     time.Now(),
		}
		txn.Hash = txn.GenerateHash(ledgerSecret())

		return tx.Create(&txn).Error
	})
}

// GrantEntitlement issues a new credit bucket to a user, with its audit
// transaction, in one database transaction.
func GrantEntitlement(userID, planID uint, credits int64, durationDays int, remark, operator string, operatorID uint) (*models.Entitlement, error) {
	var entitlement *models.Entitlement
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		entitlement, err = grantEntitlementTx(tx, userID, planID, credits, durationDays, remark, operator, operatorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entitlement, nil
}

// grantEntitlementTx performs the grant inside a caller-owned transaction,
// so order completion can commit the order and its grant atomically.
func grantEntitlementTx(tx *gorm.DB, userID, planID uint, credits int64, durationDays int, remark, operator string, operatorID uint) (*models.Entitlement, error) {
	if durationDays <= 0 {
		durationDays = 30
	}
	now := time.Now()

	entitlement := &models.Entitlement{
		UserID:           userID,
		PlanID:           planID,
		Credits:          credits,
		RemainingCredits: credits,
		StartDate:        now,
		EndDate:          now.AddDate(0, 0, durationDays),
		Status:           models.EntitlementStatusActive,
		Remark:           remark,
	}
	if err := tx.Create(entitlement).Error; err != nil {
		return nil, err
	}

	var balanceAfter int64
	if err := eligibleEntitlements(tx, userID, now).
		Select("COALESCE(SUM(remaining_credits), 0)").
		Scan(&balanceAfter).Error; err != nil {
		return nil, err
	}

	txn := models.Transaction{
		UserID:        userID,
		Amount:        credits,
		BalanceBefore: balanceAfter - credits,
		BalanceAfter:  balanceAfter,
		Reason:        remark,
		Operator:      operator,
		OperatorID:    operatorID,
		Type:          models.TransactionTypeCreditGrant,
		CreatedAt:     time.Now(),
	}
	txn.Hash = txn.GenerateHash(ledgerSecret())

	if err := tx.Create(&txn).Error; err != nil {
		return nil, err
	}
	return entitlement, nil
}

// CancelEntitlement voids an entitlement's remaining credits (refund or
// abuse handling). The audit row records the forfeited amount.
func CancelEntitlement(entitlementID uint, operator string, operatorID uint) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		var entitlement models.Entitlement
		if err := lockForUpdate(tx).First(&entitlement, entitlementID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntitlementNotFound
			}
			return err
		}
		if entitlement.Status != models.EntitlementStatusActive {
			return nil
		}

		forfeited := entitlement.RemainingCredits
		entitlement.Status = models.EntitlementStatusCancelled
		entitlement.RemainingCredits = 0
		if err := tx.Save(&entitlement).Error; err != nil {
			return err
		}

		if forfeited == 0 {
			return nil
		}

		var balanceAfter int64
		if err := eligibleEntitlements(tx, entitlement.UserID, time.Now()).
			Select("COALESCE(SUM(remaining_credits), 0)").
			Scan(&balanceAfter).Error; err != nil {
			return err
		}

		txn := models.Transaction{
			UserID:        entitlement.UserID,
			Amount:        -forfeited,
			BalanceBefore: balanceAfter + forfeited,
			BalanceAfter:  balanceAfter,
			Reason:        fmt.Sprintf("entitlement %d cancelled", entitlement.ID),
			Operator:      operator,
			OperatorID:    operatorID,
			Type:          models.TransactionTypeAdminAdjustment,
			CreatedAt:     time.Now(),
		}
		txn.Hash = txn.GenerateHash(ledgerSecret())

		return tx.Create(&txn).Error
	})
}

// FindEntitlements lists a user's entitlements, newest first.
func FindEntitlements(userID uint) ([]models.Entitlement, error) {
	var entitlements []models.Entitlement
	err := database.DB.Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&entitlements).Error
	return entitlements, err
}

// SweepExpiredEntitlements marks active entitlements whose end date has
// passed as expired. Returns the number of rows transitioned.
func SweepExpiredEntitlements() (int64, error) {
	result := database.DB.Model(&models.Entitlement{}).
		Where("status = ? AND end_date < ?", models.EntitlementStatusActive, time.Now()).
		Update("status", models.EntitlementStatusExpired)
	return result.RowsAffected, result.Error
}

// StartEntitlementSweeper runs the expiry sweep on an interval until the
// stop channel closes.
func StartEntitlementSweeper(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	zap.L().Info("entitlement sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			swept, err := SweepExpiredEntitlements()
			if err != nil {
				zap.L().Error("entitlement sweep failed", zap.Error(err))
				continue
			}
			if swept > 0 {
				zap.L().Info("expired entitlements swept", zap.Int64("count", swept))
			}
		case <-stop:
			zap.L().Info("entitlement sweeper stopped")
			return
		}
	}
}
