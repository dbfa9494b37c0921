package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/connectplus/wallet-ledger/internal/model"
)

var (
	// ErrInsufficientBalance is returned when the ledger cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrVersionConflict means a concurrent writer bumped the ledger version first.
	ErrVersionConflict = errors.New("optimistic lock conflict")
	// ErrAlreadyResolved means the transaction left pending before this update ran.
	ErrAlreadyResolved = errors.New("transaction already resolved")
)

// RepositoryInterface restricts Repo methods for unit-test mocks.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	GetLedgerForUpdate(ctx context.Context, tx *gorm.DB, accountID string) (*model.Ledger, error)
	CreateLedger(ctx context.Context, tx *gorm.DB, l *model.Ledger) error
	UpdateLedger(ctx context.Context, tx *gorm.DB, accountID string, newBalance decimal.Decimal, oldVersion uint64) error
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, txID string) (*model.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, tx *gorm.DB, txID, status string, rejectReason *string) error
	TxExists(ctx context.Context, tx *gorm.DB, accountID, idemKey, txType string) (bool, *model.Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error)
	ListPendingWithdrawals(ctx context.Context, limit int) ([]model.Transaction, error)
	DeleteTransactions(ctx context.Context, tx *gorm.DB, accountID string) (int64, error)
	GetBankInfo(ctx context.Context, accountID string) (*model.BankInfo, error)
	SaveBankInfo(ctx context.Context, info *model.BankInfo) error
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	CacheBalance(ctx context.Context, accountID string, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetLedgerForUpdate locks the ledger row.
func (r *Repository) GetLedgerForUpdate(ctx context.Context, tx *gorm.DB, accountID string) (*model.Ledger, error) {
	var l model.Ledger
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLedger inserts a fresh zero-balance ledger.
func (r *Repository) CreateLedger(ctx context.Context, tx *gorm.DB, l *model.Ledger) error {
	return tx.WithContext(ctx).Create(l).Error
}

// UpdateLedger with optimistic lock.
func (r *Repository) UpdateLedger(ctx context.Context, tx *gorm.DB, accountID string, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Ledger{}).
		Where("account_id = ? AND version = ?", accountID, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// GetTransactionForUpdate locks a transaction row by id.
func (r *Repository) GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, txID string) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", txID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransactionStatus resolves a transaction. Only pending rows match,
// so a lost race against another resolver surfaces as zero rows affected.
func (r *Repository) UpdateTransactionStatus(ctx context.Context, tx *gorm.DB, txID, status string, rejectReason *string) error {
	res := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", txID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":        status,
			"reject_reason": rejectReason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// TxExists checks duplicate by idem key.
func (r *Repository) TxExists(ctx context.Context, tx *gorm.DB, accountID, idemKey, txType string) (bool, *model.Transaction, error) {
	if idemKey == "" {
		return false, nil, nil
	}
	var t model.Transaction
	err := tx.WithContext(ctx).Where("account_id=? AND idempotency_key=? AND type=?", accountID, idemKey, txType).First(&t).Error
	if err == nil {
		return true, &t, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil, nil
	}
	return false, nil, err
}

// ListTransactions returns recent history, newest first.
func (r *Repository) ListTransactions(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// ListPendingWithdrawals returns the admin approval queue, oldest first.
func (r *Repository) ListPendingWithdrawals(ctx context.Context, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", model.TypeWithdraw, model.StatusPending).
		Order("created_at asc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// DeleteTransactions removes every transaction of one account.
func (r *Repository) DeleteTransactions(ctx context.Context, tx *gorm.DB, accountID string) (int64, error) {
	res := tx.WithContext(ctx).Where("account_id = ?", accountID).Delete(&model.Transaction{})
	return res.RowsAffected, res.Error
}

// GetBankInfo fetches linked bank details, gorm.ErrRecordNotFound if none.
func (r *Repository) GetBankInfo(ctx context.Context, accountID string) (*model.BankInfo, error) {
	var info model.BankInfo
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&info).Error; err != nil {
		return nil, err
	}
	return &info, nil
}

// SaveBankInfo upserts the linked bank account.
func (r *Repository) SaveBankInfo(ctx context.Context, info *model.BankInfo) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			UpdateAll: true,
		}).Create(info).Error
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, accountID string, bal decimal.Decimal) error {
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%s", accountID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%s", accountID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
