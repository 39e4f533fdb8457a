package models

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Trainer struct {
	gorm.Model
	UserID               uint           `gorm:"column:user_id;not null;index" json:"user_id"`
	Bio                  string         `gorm:"column:bio;type:text" json:"bio"`
	YearsExperience      int            `gorm:"column:years_experience;default:0" json:"years_experience"`
	HourlyRate           float64        `gorm:"column:hourly_rate;not null" json:"hourly_rate"`
	Specialties          pq.StringArray `gorm:"column:specialties;type:text[]" json:"specialties"`
	ServiceAreas         pq.StringArray `gorm:"column:service_areas;type:text[]" json:"service_areas"`
	Certifications       pq.StringArray `gorm:"column:certifications;type:text[]" json:"certifications"`
	HomeVisitAvailable   bool           `gorm:"column:home_visit_available;default:false" json:"home_visit_available"`
	CenterVisitAvailable bool           `gorm:"column:center_visit_available;default:false" json:"center_visit_available"`
	OnlineAvailable      bool           `gorm:"column:online_available;default:false" json:"online_available"`
	IsVerified           bool           `gorm:"column:is_verified;default:false" json:"is_verified"`
	IsActive             bool           `gorm:"column:is_active;default:true" json:"is_active"`
	CenterID             *uint          `gorm:"column:center_id" json:"center_id,omitempty"`

	AverageRating float64 `gorm:"column:average_rating;default:0" json:"average_rating"`
	TotalReviews  int     `gorm:"column:total_reviews;default:0" json:"total_reviews"`

	User   *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Center *Center `gorm:"foreignKey:CenterID" json:"center,omitempty"`
}

func (Trainer) TableName() string {
	return "trainers"
}

// SupportsServiceType reports whether the trainer offers the requested
// delivery mode.
func (t *Trainer) SupportsServiceType(serviceType string) bool {
	switch serviceType {
	case ServiceHomeVisit:
		return t.HomeVisitAvailable
	case ServiceCenterVisit:
		return t.CenterVisitAvailable
	case ServiceOnline:
		return t.OnlineAvailable
	}
	return false
}
