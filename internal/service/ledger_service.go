package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/connectplus/wallet-ledger/internal/model"
	"github.com/connectplus/wallet-ledger/internal/repo"
)

// Validation errors. All are detected before any mutation: a failed call
// leaves the ledger exactly as it was.
var (
	ErrInvalidAmount       = errors.New("amount must be a positive whole amount")
	ErrBankNotLinked       = errors.New("no bank account linked")
	ErrBelowMinimum        = errors.New("amount below minimum withdrawal")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidState        = errors.New("transaction already resolved")
	ErrReasonRequired      = errors.New("reject reason must not be empty")
	ErrInvalidDirection    = errors.New("direction must be add or subtract")
	ErrBankInfoIncomplete  = errors.New("bank name, account number and holder name are required")
)

// Adjustment directions for AdjustBalance.
const (
	DirectionAdd      = "add"
	DirectionSubtract = "subtract"
)

// LedgerService owns all balance mutations for an account. Every write
// runs inside one DB transaction so balance and history never drift apart.
type LedgerService struct {
	repo          repo.RepositoryInterface
	minWithdrawal decimal.Decimal
	log           *zap.SugaredLogger
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.RepositoryInterface, minWithdrawal decimal.Decimal, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, minWithdrawal: minWithdrawal, log: logger}
}

// RequestWithdrawal creates a pending withdrawal and debits the balance
// immediately. The debit is held until an admin approves (kept) or rejects
// (credited back), so a second request cannot spend the same funds.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, accountID string, amount decimal.Decimal, idemKey string) (*model.Transaction, error) {
	bank, err := s.repo.GetBankInfo(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBankNotLinked
		}
		return nil, err
	}
	// amounts are whole đ; a fractional request would round in storage
	// and break the later compensating credit
	if !amount.IsInteger() || amount.LessThan(s.minWithdrawal) {
		return nil, ErrBelowMinimum
	}

	var out *model.Transaction
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		existed, prev, err := s.repo.TxExists(ctx, tx, accountID, idemKey, model.TypeWithdraw)
		if err != nil {
			return err
		}
		if existed {
			out = prev
			return nil
		}

		l, err := s.repo.GetLedgerForUpdate(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repo.ErrInsufficientBalance
			}
			return err
		}
		if l.Balance.LessThan(amount) {
			return repo.ErrInsufficientBalance
		}

		newBal := l.Balance.Sub(amount)
		if err := s.repo.UpdateLedger(ctx, tx, accountID, newBal, l.Version); err != nil {
			return err
		}
		t := &model.Transaction{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			Type:          model.TypeWithdraw,
			Amount:        amount,
			Description:   fmt.Sprintf("Withdraw to %s", bank.BankName),
			Status:        model.StatusPending,
			BalanceBefore: l.Balance,
			BalanceAfter:  newBal,
		}
		if idemKey != "" {
			t.IdempotencyKey = &idemKey
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, accountID, model.EventWithdrawalRequested, map[string]interface{}{
			"transaction_id": t.ID, "amount": amount, "balance": newBal,
		}); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, accountID, newBal); err != nil {
			s.log.Warn(err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer debits the balance and records a final transaction in one step.
// There is no approval stage for transfers.
func (s *LedgerService) Transfer(ctx context.Context, accountID string, amount decimal.Decimal, target, idemKey string) (*model.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) || !amount.IsInteger() {
		return nil, ErrInvalidAmount
	}
	var out *model.Transaction
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		existed, prev, err := s.repo.TxExists(ctx, tx, accountID, idemKey, model.TypeTransfer)
		if err != nil {
			return err
		}
		if existed {
			out = prev
			return nil
		}

		l, err := s.repo.GetLedgerForUpdate(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repo.ErrInsufficientBalance
			}
			return err
		}
		if l.Balance.LessThan(amount) {
			return repo.ErrInsufficientBalance
		}

		newBal := l.Balance.Sub(amount)
		if err := s.repo.UpdateLedger(ctx, tx, accountID, newBal, l.Version); err != nil {
			return err
		}
		t := &model.Transaction{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			Type:          model.TypeTransfer,
			Amount:        amount,
			Description:   fmt.Sprintf("Transfer to %s", target),
			Status:        model.StatusSuccess,
			BalanceBefore: l.Balance,
			BalanceAfter:  newBal,
		}
		if idemKey != "" {
			t.IdempotencyKey = &idemKey
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, accountID, model.EventTransferSent, map[string]interface{}{
			"transaction_id": t.ID, "target": target, "amount": amount, "balance": newBal,
		}); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, accountID, newBal); err != nil {
			s.log.Warn(err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Approve resolves a pending withdrawal as success. The balance is left
// alone: the debit already happened at request time.
func (s *LedgerService) Approve(ctx context.Context, txID string) (*model.Transaction, error) {
	var out *model.Transaction
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if t.Type != model.TypeWithdraw || t.Resolved() {
			return ErrInvalidState
		}
		if err := s.repo.UpdateTransactionStatus(ctx, tx, txID, model.StatusSuccess, nil); err != nil {
			if errors.Is(err, repo.ErrAlreadyResolved) {
				return ErrInvalidState
			}
			return err
		}
		if err := s.emit(ctx, tx, t.AccountID, model.EventWithdrawalApproved, map[string]interface{}{
			"transaction_id": t.ID, "amount": t.Amount,
		}); err != nil {
			return err
		}
		t.Status = model.StatusSuccess
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reject resolves a pending withdrawal as rejected and credits the amount
// back. The status guard in UpdateTransactionStatus makes a double reject
// fail the whole transaction, so the credit can never apply twice.
func (s *LedgerService) Reject(ctx context.Context, txID, reason string) (*model.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	var out *model.Transaction
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.GetTransactionForUpdate(ctx, tx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if t.Type != model.TypeWithdraw || t.Resolved() {
			return ErrInvalidState
		}

		l, err := s.repo.GetLedgerForUpdate(ctx, tx, t.AccountID)
		if err != nil {
			return err
		}
		newBal := l.Balance.Add(t.Amount)
		if err := s.repo.UpdateTransactionStatus(ctx, tx, txID, model.StatusRejected, &reason); err != nil {
			if errors.Is(err, repo.ErrAlreadyResolved) {
				return ErrInvalidState
			}
			return err
		}
		if err := s.repo.UpdateLedger(ctx, tx, t.AccountID, newBal, l.Version); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, t.AccountID, model.EventWithdrawalRejected, map[string]interface{}{
			"transaction_id": t.ID, "amount": t.Amount, "reason": reason, "balance": newBal,
		}); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, t.AccountID, newBal); err != nil {
			s.log.Warn(err)
		}
		t.Status = model.StatusRejected
		t.RejectReason = &reason
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdjustBalance mutates the balance directly, outside the request flow.
// A subtract adjustment may drive the balance negative; this is not
// clamped. The logged transaction always carries the unsigned amount.
func (s *LedgerService) AdjustBalance(ctx context.Context, accountID string, amount decimal.Decimal, direction string) (*model.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) || !amount.IsInteger() {
		return nil, ErrInvalidAmount
	}
	if direction != DirectionAdd && direction != DirectionSubtract {
		return nil, ErrInvalidDirection
	}
	var out *model.Transaction
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.repo.GetLedgerForUpdate(ctx, tx, accountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				l = &model.Ledger{AccountID: accountID, Balance: decimal.Zero}
				if err := s.repo.CreateLedger(ctx, tx, l); err != nil {
					return err
				}
			} else {
				return err
			}
		}

		delta := amount
		if direction == DirectionSubtract {
			delta = amount.Neg()
		}
		newBal := l.Balance.Add(delta)
		if err := s.repo.UpdateLedger(ctx, tx, accountID, newBal, l.Version); err != nil {
			return err
		}
		t := &model.Transaction{
			ID:            uuid.NewString(),
			AccountID:     accountID,
			Type:          model.TypeAdminAdjustment,
			Amount:        amount,
			Description:   fmt.Sprintf("%s by admin", direction),
			Status:        model.StatusSuccess,
			BalanceBefore: l.Balance,
			BalanceAfter:  newBal,
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, accountID, model.EventBalanceAdjusted, map[string]interface{}{
			"transaction_id": t.ID, "direction": direction, "amount": amount, "balance": newBal,
		}); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, accountID, newBal); err != nil {
			s.log.Warn(err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearHistory deletes every transaction of an account. The balance is
// explicitly left untouched.
func (s *LedgerService) ClearHistory(ctx context.Context, accountID string) (int64, error) {
	var removed int64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.DeleteTransactions(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := s.emit(ctx, tx, accountID, model.EventHistoryCleared, map[string]interface{}{
			"removed": n,
		}); err != nil {
			return err
		}
		removed = n
		return nil
	})
	return removed, err
}

// GetBalance returns the current balance, zero for an unknown account.
func (s *LedgerService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, accountID)
	if err == nil {
		return bal, nil
	}
	var l model.Ledger
	if err := s.repo.DB(ctx).Where("account_id=?", accountID).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	_ = s.repo.CacheBalance(ctx, accountID, l.Balance)
	return l.Balance, nil
}

// GetHistory fetches recent transactions, newest first.
func (s *LedgerService) GetHistory(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID, limit)
}

// ListPending returns all unresolved withdrawal requests across accounts.
func (s *LedgerService) ListPending(ctx context.Context, limit int) ([]model.Transaction, error) {
	return s.repo.ListPendingWithdrawals(ctx, limit)
}

// LinkBank records the bank account a withdrawal pays out to.
func (s *LedgerService) LinkBank(ctx context.Context, info *model.BankInfo) error {
	if info.BankName == "" || info.AccountNumber == "" || info.HolderName == "" {
		return ErrBankInfoIncomplete
	}
	return s.repo.SaveBankInfo(ctx, info)
}

// GetBank returns the linked bank account, ErrBankNotLinked if absent.
func (s *LedgerService) GetBank(ctx context.Context, accountID string) (*model.BankInfo, error) {
	info, err := s.repo.GetBankInfo(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBankNotLinked
		}
		return nil, err
	}
	return info, nil
}

// Repo exposes underlying repository (unit tests helper).
func (s *LedgerService) Repo() repo.RepositoryInterface {
	return s.repo
}

func (s *LedgerService) emit(ctx context.Context, tx *gorm.DB, accountID, eventType string, fields map[string]interface{}) error {
	payload, _ := json.Marshal(fields)
	evt := &model.OutboxEvent{
		Aggregate:   "Ledger",
		AggregateID: accountID,
		EventType:   eventType,
		Payload:     string(payload),
	}
	return s.repo.CreateOutboxEvent(ctx, tx, evt)
}
