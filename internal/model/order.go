package model

import "time"

// Order is a material purchase order placed with a supplier. The payment
// retry worker only ever moves Status forward, never backward.
type Order struct {
	ID               uint64 `json:"id" gorm:"primaryKey"`
	Material         string `json:"material" gorm:"size:64;index"`
	Units            int    `json:"units"`
	RecipientName    string `json:"recipient_name" gorm:"size:128"`
	RecipientAccount string `json:"recipient_account" gorm:"size:64"`
	RecipientBankID  string `json:"recipient_bank_id" gorm:"size:64"`
	Amount           int64  `json:"amount"`
	Reference        string `json:"reference" gorm:"size:64;index"`
	Status           string `json:"status" gorm:"size:32;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const (
	OrderPending       = "PENDING"
	OrderPaymentFailed = "PAYMENT_FAILED"
	OrderAccepted      = "ACCEPTED"
	OrderDelivered     = "DELIVERED"
	OrderCancelled     = "CANCELLED"
)
