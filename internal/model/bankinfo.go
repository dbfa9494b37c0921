package model

import "time"

// BankInfo must be linked before an account may request a withdrawal.
type BankInfo struct {
	AccountID     string    `gorm:"primaryKey;size:64" json:"account_id"`
	BankName      string    `gorm:"size:128;not null" json:"bank_name"`
	AccountNumber string    `gorm:"size:64;not null" json:"account_number"`
	HolderName    string    `gorm:"size:128;not null" json:"holder_name"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BankInfo) TableName() string { return "bank_info" }
