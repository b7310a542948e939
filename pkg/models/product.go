package models

import (
	"time"
)

type Product struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	Price     int64     `gorm:"not null" json:"price"`
	Stock     int64     `gorm:"not null;default:0" json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
