package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger holds the balance for one account. Balance is unclamped:
// an admin subtract adjustment may drive it negative.
type Ledger struct {
	AccountID string          `gorm:"primaryKey;size:64" json:"account_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,0);not null;default:'0'" json:"balance"`
	Version   uint64          `gorm:"not null;default:0" json:"-"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Ledger) TableName() string { return "ledger" }
