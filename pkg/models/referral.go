package models

import (
	"encoding/json"
	"time"
)

// Referral is a shareable credit link. RedeemedBy stores the redeeming
// user ids as a JSON array; each user may redeem a given link once and
// never their own.
type Referral struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LinkID     string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"link_id"`
	CreatedBy  string    `gorm:"type:varchar(36);not null;index" json:"created_by"`
	RedeemedBy string    `gorm:"type:text" json:"redeemed_by"` // JSON array of user ids
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Referral) TableName() string {
	return "referrals"
}

func (r *Referral) Redeemers() []string {
	if r.RedeemedBy == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(r.RedeemedBy), &ids); err != nil {
		return nil
	}
	return ids
}

func (r *Referral) RedeemedByUser(userID string) bool {
	for _, id := range r.Redeemers() {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Referral) AddRedeemer(userID string) error {
	ids := append(r.Redeemers(), userID)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	r.RedeemedBy = string(data)
	return nil
}

func (r *Referral) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
