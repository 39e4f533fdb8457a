package models

import (
	"gorm.io/gorm"
)

type Review struct {
	gorm.Model
	BookingID  uint    `gorm:"column:booking_id;not null;uniqueIndex" json:"booking_id"`
	CustomerID uint    `gorm:"column:customer_id;not null;index" json:"customer_id"`
	TrainerID  uint    `gorm:"column:trainer_id;not null;index" json:"trainer_id"`
	Rating     float64 `gorm:"column:rating;not null" json:"rating"`
	Comment    string  `gorm:"column:comment;type:text" json:"comment"`
	IsHidden   bool    `gorm:"column:is_hidden;default:false" json:"is_hidden"`

	Customer *User    `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Trainer  *Trainer `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}
