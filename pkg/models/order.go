package models

import (
	"encoding/json"
	"time"
)

// PaymentStatus is the order lifecycle state. Pending is the only
// non-terminal state; every transition out of it is final.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "Pending"
	PaymentCompleted         PaymentStatus = "Completed"
	PaymentFailed            PaymentStatus = "Failed"
	PaymentReferralDisparity PaymentStatus = "ReferralDisparity"
	PaymentExchangeDisparity PaymentStatus = "ExchangeDisparity"
)

func (s PaymentStatus) Terminal() bool {
	return s != PaymentPending
}

// Order snapshots the cart at checkout time. Amounts are integer units of
// the smallest currency denomination. FinalAmount is what the gateway
// charges: TotalAmount - ReferralDiscount - ExchangeDiscount, never negative.
type Order struct {
	ID               string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID           string        `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Items            string        `gorm:"type:text" json:"items"` // JSON line item snapshot
	TotalAmount      int64         `gorm:"not null" json:"total_amount"`
	ReferralDiscount int64         `gorm:"not null" json:"referral_discount"`
	ExchangeDiscount int64         `gorm:"not null" json:"exchange_discount"`
	FinalAmount      int64         `gorm:"not null" json:"final_amount"`
	ShippingAddress  string        `gorm:"type:text" json:"shipping_address"`
	BillingAddress   string        `gorm:"type:text" json:"billing_address"`
	Gift             bool          `json:"gift"`
	PaymentStatus    PaymentStatus `gorm:"type:varchar(20);default:'Pending';index" json:"payment_status"`
	PaymentID        string        `gorm:"type:varchar(64)" json:"payment_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"` // line price at add-to-cart time
}

func (o *Order) LineItems() ([]OrderItem, error) {
	var items []OrderItem
	if err := json.Unmarshal([]byte(o.Items), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (o *Order) SetLineItems(items []OrderItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	o.Items = string(data)
	return nil
}
