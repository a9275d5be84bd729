package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"novelcraft-backend/internal/database"
	"novelcraft-backend/internal/gateway"
	"novelcraft-backend/internal/models"
)

func setupTestDB() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	db.Migrator().DropTable(
		&models.User{}, &models.ModelConfig{}, &models.Entitlement{},
		&models.MembershipPlan{}, &models.Transaction{}, &models.CallRecord{},
		&models.Conversation{}, &models.Message{}, &models.Novel{},
		&models.Chapter{}, &models.Character{}, &models.Worldview{},
		&models.Prompt{}, &models.PaymentOrderRecord{},
	)
	err = db.AutoMigrate(
		&models.User{}, &models.ModelConfig{}, &models.Entitlement{},
		&models.MembershipPlan{}, &models.Transaction{}, &models.CallRecord{},
		&models.Conversation{}, &models.Message{}, &models.Novel{},
		&models.Chapter{}, &models.Character{}, &models.Worldview{},
		&models.Prompt{}, &models.PaymentOrderRecord{},
	)
	if err != nil {
		panic("failed to migrate database")
	}

	database.DB = db
}

func setupTestRedis() *miniredis.Miniredis {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}

	database.RedisClient = redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr
}

func seedEntitlement(userID uint, remaining int64, endsIn time.Duration) models.Entitlement {
	e := models.Entitlement{
		UserID:           userID,
		Credits:          remaining,
		RemainingCredits: remaining,
		StartDate:        time.Now().Add(-time.Hour),
		EndDate:          time.Now().Add(endsIn),
		Status:           models.EntitlementStatusActive,
	}
	database.DB.Create(&e)
	return e
}

func TestConsumeCreditsDrainsSoonestExpiryFirst(t *testing.T) {
	setupTestDB()

	// Expires soonest, should be drained first.
	first := seedEntitlement(1, 3, 24*time.Hour)
	second := seedEntitlement(1, 5, 48*time.Hour)

	require.NoError(t, ConsumeCredits(1, 4, "test call", "system"))

	var e1, e2 models.Entitlement
	database.DB.First(&e1, first.ID)
	database.DB.First(&e2, second.ID)

	assert.Equal(t, int64(0), e1.RemainingCredits)
	assert.Equal(t, models.EntitlementStatusExhausted, e1.Status)
	assert.Equal(t, int64(4), e2.RemainingCredits)
	assert.Equal(t, models.EntitlementStatusActive, e2.Status)

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)
}

func TestConsumeCreditsIsAllOrNothing(t *testing.T) {
	setupTestDB()

	first := seedEntitlement(1, 3, 24*time.Hour)
	second := seedEntitlement(1, 2, 48*time.Hour)

	err := ConsumeCredits(1, 6, "test call", "system")
	assert.ErrorIs(t, err, gateway.ErrInsufficientCredits)

	// Nothing was touched.
	var e1, e2 models.Entitlement
	database.DB.First(&e1, first.ID)
	database.DB.First(&e2, second.ID)
	assert.Equal(t, int64(3), e1.RemainingCredits)
	assert.Equal(t, int64(2), e2.RemainingCredits)

	var txnCount int64
	database.DB.Model(&models.Transaction{}).Count(&txnCount)
	assert.Equal(t, int64(0), txnCount)
}

func TestConsumeCreditsIgnoresExpiredAndForeignBuckets(t *testing.T) {
	setupTestDB()

	// Already past end date but not yet swept.
	expired := seedEntitlement(1, 10, -time.Hour)
	// Another user's credits.
	seedEntitlement(2, 10, 24*time.Hour)

	err := ConsumeCredits(1, 1, "test call", "system")
	assert.ErrorIs(t, err, gateway.ErrInsufficientCredits)

	var e models.Entitlement
	database.DB.First(&e, expired.ID)
	assert.Equal(t, int64(10), e.RemainingCredits)
}

func TestConsumeCreditsWritesAuditTransaction(t *testing.T) {
	setupTestDB()

	seedEntitlement(1, 10, 24*time.Hour)
	require.NoError(t, ConsumeCredits(1, 3, "ai call: chapter via test-model", "system"))

	var txn models.Transaction
	require.NoError(t, database.DB.Last(&txn).Error)
	assert.Equal(t, uint(1), txn.UserID)
	assert.Equal(t, int64(-3), txn.Amount)
	assert.Equal(t, int64(10), txn.BalanceBefore)
	assert.Equal(t, int64(7), txn.BalanceAfter)
	assert.Equal(t, models.TransactionTypeCreditConsume, txn.Type)
	assert.True(t, VerifyTransactionHash(&txn))

	// Tampering invalidates the hash.
	txn.Amount = -1
	assert.False(t, VerifyTransactionHash(&txn))
}

func TestGrantEntitlement(t *testing.T) {
	setupTestDB()

	entitlement, err := GrantEntitlement(1, 2, 100, 30, "plan purchase", "admin", 9)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entitlement.RemainingCredits)
	assert.Equal(t, models.EntitlementStatusActive, entitlement.Status)

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	var txn models.Transaction
	require.NoError(t, database.DB.Last(&txn).Error)
	assert.Equal(t, int64(100), txn.Amount)
	assert.Equal(t, models.TransactionTypeCreditGrant, txn.Type)
	assert.True(t, VerifyTransactionHash(&txn))
}

func TestCancelEntitlementForfeitsRemainder(t *testing.T) {
	setupTestDB()

	e := seedEntitlement(1, 8, 24*time.Hour)
	require.NoError(t, CancelEntitlement(e.ID, "admin", 9))

	var updated models.Entitlement
	database.DB.First(&updated, e.ID)
	assert.Equal(t, models.EntitlementStatusCancelled, updated.Status)
	assert.Equal(t, int64(0), updated.RemainingCredits)

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// Cancelling again is a no-op.
	require.NoError(t, CancelEntitlement(e.ID, "admin", 9))
}

func TestSweepExpiredEntitlements(t *testing.T) {
	setupTestDB()

	stale := seedEntitlement(1, 5, -time.Hour)
	fresh := seedEntitlement(1, 5, time.Hour)

	swept, err := SweepExpiredEntitlements()
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	var e1, e2 models.Entitlement
	database.DB.First(&e1, stale.ID)
	database.DB.First(&e2, fresh.ID)
	assert.Equal(t, models.EntitlementStatusExpired, e1.Status)
	assert.Equal(t, models.EntitlementStatusActive, e2.Status)

	// Remaining credits survive the transition for audit purposes.
	assert.Equal(t, int64(5), e1.RemainingCredits)
}

func TestCanConsume(t *testing.T) {
	setupTestDB()

	seedEntitlement(1, 2, 24*time.Hour)

	ok, err := CanConsume(1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CanConsume(1, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeCreditsConcurrentNeverOverdraws(t *testing.T) {
	setupTestDB()

	seedEntitlement(1, 1, 24*time.Hour)

	// Two racing calls against a single remaining credit: the transaction
	// must serialize them so exactly one debits and the other sees an
	// unfundable balance. The in-memory driver can reject a racing write
	// outright, so contention errors are retried until the ledger answers.
	var successes, insufficient int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 100; attempt++ {
				err := ConsumeCredits(1, 1, "concurrent call", "system")
				if err == nil {
					atomic.AddInt32(&successes, 1)
					return
				}
				if errors.Is(err, gateway.ErrInsufficientCredits) {
					atomic.AddInt32(&insufficient, 1)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
	assert.EqualValues(t, 1, insufficient)

	balance, err := CreditBalance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// Exactly one audit row for the single successful debit.
	var txns []models.Transaction
	require.NoError(t, database.DB.Where("user_id = ? AND type = ?", 1, models.TransactionTypeCreditConsume).Find(&txns).Error)
	require.Len(t, txns, 1)
	assert.Equal(t, int64(-1), txns[0].Amount)
}
