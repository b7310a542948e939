package models

import (
	"time"
)

// Wallet holds per-user store credit. ReferralBalance is earned through
// referral redemptions, ExchangeBalance is credited by operators. Balances
// never go negative; debits are guarded with conditional updates.
// Locked is a legacy guard kept for the admin unlock endpoint; it no
// longer gates checkout.
type Wallet struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	ReferralBalance int64     `gorm:"not null;default:0" json:"referral_balance"`
	ExchangeBalance int64     `gorm:"not null;default:0" json:"exchange_balance"`
	Locked          bool      `gorm:"column:locked;not null;default:false" json:"locked"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// BalanceField names a wallet balance column for ledger adjustments.
type BalanceField string

const (
	ReferralBalance BalanceField = "referral_balance"
	ExchangeBalance BalanceField = "exchange_balance"
)

func (f BalanceField) Valid() bool {
	return f == ReferralBalance || f == ExchangeBalance
}
