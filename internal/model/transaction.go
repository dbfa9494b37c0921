package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds.
const (
	TypeWithdraw        = "withdraw"
	TypeTransfer        = "transfer"
	TypeAdminAdjustment = "admin_adjustment"
)

// Transaction statuses. Withdrawals start pending; transfers and admin
// adjustments are success at creation. Once a transaction leaves
// pending it never re-enters it.
const (
	StatusPending  = "pending"
	StatusSuccess  = "success"
	StatusRejected = "rejected"
)

type Transaction struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	AccountID      string          `gorm:"size:64;index;not null" json:"account_id"`
	Type           string          `gorm:"size:32;not null" json:"type"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,0);not null" json:"amount"`
	Description    string          `gorm:"size:255" json:"description"`
	Status         string          `gorm:"size:16;not null;index" json:"status"`
	RejectReason   *string         `gorm:"size:255" json:"reject_reason,omitempty"`
	BalanceBefore  decimal.Decimal `gorm:"type:numeric(20,0);not null" json:"balance_before"`
	BalanceAfter   decimal.Decimal `gorm:"type:numeric(20,0);not null" json:"balance_after"`
	IdempotencyKey *string         `gorm:"size:64" json:"-"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string { return "transaction" }

// Resolved reports whether the transaction has left pending.
func (t *Transaction) Resolved() bool { return t.Status != StatusPending }
