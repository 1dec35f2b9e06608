package models

import (
	"time"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	UserID   uint   `gorm:"index;not null" json:"userId"`
	UserName string `gorm:"size:255" json:"userName"`

	Amount      float64   `gorm:"not null" json:"amount"`
	Currency    string    `gorm:"size:10;default:'USD'" json:"currency"`
	ReferenceID string    `gorm:"uniqueIndex;size:32;not null" json:"referenceId"`
	Status      string    `gorm:"size:20;default:'pending';index" json:"status"` // pending, completed, failed
	PaymentDate time.Time `json:"paymentDate"`

	PaymentMethod string `gorm:"size:50" json:"paymentMethod"`
	FeeType       string `gorm:"size:100" json:"feeType"`
	Level         string `gorm:"size:50;index" json:"level"`
}

func (Payment) TableName() string {
	return "payments"
}

// ValidPaymentStatus reports whether s is a status the API may store.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}
