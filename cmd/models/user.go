package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleTrainer  = "trainer"
	RoleAdmin    = "admin"
)

type User struct {
	gorm.Model
	FullName              string    `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email                 string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash          string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role                  string    `gorm:"column:role;size:50;not null" json:"role"`
	Phone                 string    `gorm:"column:phone;size:20;not null" json:"phone"`
	PhoneVerified         bool      `gorm:"column:phone_verified;default:false" json:"phone_verified"`
	EmailVerified         bool      `gorm:"column:email_verified;default:false" json:"email_verified"`
	Status                string    `gorm:"column:status;size:50;not null;default:active" json:"status"`
	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`
	ProfilePicturePath    string    `gorm:"column:profile_picture_path;size:255" json:"profile_picture_path"`
	EmailVerificationCode string    `gorm:"size:6" json:"-"`
	VerificationExpiry    time.Time `json:"-"`

	Trainer *Trainer `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"trainer,omitempty"`
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
