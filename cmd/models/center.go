package models

import (
	"gorm.io/gorm"
)

type Center struct {
	gorm.Model
	Name        string `gorm:"column:name;size:255;not null" json:"name"`
	Address     string `gorm:"column:address;size:500;not null" json:"address"`
	Phone       string `gorm:"column:phone;size:20" json:"phone"`
	Description string `gorm:"column:description;type:text" json:"description"`
	IsApproved  bool   `gorm:"column:is_approved;default:false" json:"is_approved"`
	OwnerUserID uint   `gorm:"column:owner_user_id;index" json:"owner_user_id"`

	Trainers []Trainer `gorm:"foreignKey:CenterID" json:"trainers,omitempty"`
}

func (Center) TableName() string {
	return "centers"
}
