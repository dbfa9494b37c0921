package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/connectplus/wallet-ledger/internal/logger"
	"github.com/connectplus/wallet-ledger/internal/model"
)

func TestOptimisticLock_ConcurrentUpdate(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	_ = db.AutoMigrate(&model.Ledger{})

	// seed ledger
	db.Create(&model.Ledger{AccountID: "acc-1", Balance: decimal.NewFromInt(100)})

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger("test")))

	wg := sync.WaitGroup{}
	success := 0

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = db.Transaction(func(tx *gorm.DB) error {
				l, err := repo.GetLedgerForUpdate(context.Background(), tx, "acc-1")
				if err != nil {
					return err
				}
				return repo.UpdateLedger(context.Background(), tx, "acc-1",
					l.Balance.Add(decimal.NewFromInt(10)), l.Version)
			})
		}()
	}
	wg.Wait()

	var final model.Ledger
	_ = db.First(&final, "account_id = ?", "acc-1").Error

	if final.Balance.Equal(decimal.NewFromInt(110)) {
		success = 1
	}
	assert.Equal(t, 1, success, "only one goroutine should succeed with optimistic lock")
}

func TestUpdateTransactionStatus_PendingGuard(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file:pending_guard?mode=memory&cache=shared"), &gorm.Config{})
	_ = db.AutoMigrate(&model.Transaction{})

	db.Create(&model.Transaction{
		ID:        "tx-1",
		AccountID: "acc-1",
		Type:      model.TypeWithdraw,
		Amount:    decimal.NewFromInt(50000),
		Status:    model.StatusPending,
	})

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger("test")))
	ctx := context.Background()

	assert.NoError(t, repo.UpdateTransactionStatus(ctx, db, "tx-1", model.StatusSuccess, nil))

	// a second resolution matches zero rows
	reason := "late"
	err := repo.UpdateTransactionStatus(ctx, db, "tx-1", model.StatusRejected, &reason)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	var final model.Transaction
	assert.NoError(t, db.First(&final, "id = ?", "tx-1").Error)
	assert.Equal(t, model.StatusSuccess, final.Status)
	assert.Nil(t, final.RejectReason)
}

func TestUpdateLedger_StaleVersion(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file:stale_version?mode=memory&cache=shared"), &gorm.Config{})
	_ = db.AutoMigrate(&model.Ledger{})

	db.Create(&model.Ledger{AccountID: "acc-1", Balance: decimal.NewFromInt(100), Version: 3})

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger("test")))
	ctx := context.Background()

	err := repo.UpdateLedger(ctx, db, "acc-1", decimal.NewFromInt(200), 2)
	assert.ErrorIs(t, err, ErrVersionConflict)

	var final model.Ledger
	assert.NoError(t, db.First(&final, "account_id = ?", "acc-1").Error)
	assert.Equal(t, "100", final.Balance.StringFixed(0))
}

func TestSaveBankInfo_Upsert(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open("file:bank_upsert?mode=memory&cache=shared"), &gorm.Config{})
	_ = db.AutoMigrate(&model.BankInfo{})

	repo := NewRepository(db, nil, &kafka.Writer{}, must(logger.NewLogger("test")))
	ctx := context.Background()

	assert.NoError(t, repo.SaveBankInfo(ctx, &model.BankInfo{
		AccountID: "acc-1", BankName: "Vietcombank", AccountNumber: "111", HolderName: "Mai",
	}))
	assert.NoError(t, repo.SaveBankInfo(ctx, &model.BankInfo{
		AccountID: "acc-1", BankName: "Techcombank", AccountNumber: "222", HolderName: "Mai",
	}))

	info, err := repo.GetBankInfo(ctx, "acc-1")
	assert.NoError(t, err)
	assert.Equal(t, "Techcombank", info.BankName)
	assert.Equal(t, "222", info.AccountNumber)
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
