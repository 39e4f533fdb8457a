package models

import (
	"time"

	"gorm.io/gorm"
)

type Availability struct {
	gorm.Model
	TrainerID uint      `gorm:"column:trainer_id;not null;index" json:"trainer_id"`
	Date      time.Time `gorm:"column:date;not null" json:"date"`
	StartTime time.Time `gorm:"column:start_time;not null" json:"start_time"`
	EndTime   time.Time `gorm:"column:end_time;not null" json:"end_time"`
	Note      string    `gorm:"column:note;type:text" json:"note"`

	Trainer *Trainer `gorm:"foreignKey:TrainerID" json:"-"`
}

func (Availability) TableName() string {
	return "availabilities"
}
