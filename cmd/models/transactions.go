package models

import (
	"gorm.io/gorm"
)

// Payment statuses mirrored onto Booking.PaymentStatus.
const (
	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

type Payment struct {
	gorm.Model
	BookingID uint    `gorm:"column:booking_id;not null;index" json:"booking_id"`
	UserID    uint    `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount    float64 `gorm:"column:amount;not null" json:"amount"`
	Method    string  `gorm:"column:method;size:50" json:"method"`
	Reference string  `gorm:"column:reference;size:64;uniqueIndex" json:"reference"`
	Status    string  `gorm:"column:status;size:20;not null;default:paid" json:"status"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}
