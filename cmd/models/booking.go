package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Booking types.
const (
	BookingDirect      = "direct"
	BookingRecommended = "recommended"
)

// Service types.
const (
	ServiceHomeVisit   = "home_visit"
	ServiceCenterVisit = "center_visit"
	ServiceOnline      = "online"
)

// Session types. The suffix encodes the participant count.
const (
	SessionOneOnOne   = "1:1"
	SessionTwoOnOne   = "2:1"
	SessionThreeOnOne = "3:1"
)

// Booking workflow status.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Matching lifecycle status. A booking starts at MatchingPending and never
// returns to it once it has left: MatchingApproved is reached by a trainer
// winning the accept race, MatchingMatched by an admin manual assignment,
// MatchingExpired by cancellation of an unmatched booking.
const (
	MatchingPending  = "pending"
	MatchingApproved = "approved"
	MatchingMatched  = "matched"
	MatchingExpired  = "expired"
)

type Booking struct {
	gorm.Model
	Reference  string `gorm:"column:reference;size:64;uniqueIndex" json:"reference"`
	CustomerID uint   `gorm:"column:customer_id;not null;index" json:"customer_id"`
	TrainerID  *uint  `gorm:"column:trainer_id;index" json:"trainer_id,omitempty"`
	CenterID   *uint  `gorm:"column:center_id" json:"center_id,omitempty"`

	BookingType string `gorm:"column:booking_type;size:20;not null;default:direct" json:"booking_type"`
	ServiceType string `gorm:"column:service_type;size:20;not null" json:"service_type"`
	SessionType string `gorm:"column:session_type;size:10;not null;default:'1:1'" json:"session_type"`

	BookingDate     time.Time `gorm:"column:booking_date;not null" json:"booking_date"`
	StartTime       time.Time `gorm:"column:start_time;not null" json:"start_time"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null;default:60" json:"duration_minutes"`
	Address         string    `gorm:"column:address;size:500" json:"address"`
	CustomerNotes   string    `gorm:"column:customer_notes;type:text" json:"customer_notes"`

	Status        string `gorm:"column:status;size:20;not null;default:pending" json:"status"`
	PaymentStatus string `gorm:"column:payment_status;size:20;not null;default:unpaid" json:"payment_status"`

	PricePerPerson float64 `gorm:"column:price_per_person;default:0" json:"price_per_person"`
	TotalPrice     float64 `gorm:"column:total_price;default:0" json:"total_price"`
	MaxHourlyRate  float64 `gorm:"column:max_hourly_rate;default:0" json:"max_hourly_rate"`

	// Auto-matching state. PendingTrainerIDs is the notify-set: the trainers
	// offered this booking, in ranked order. It is written once at notify time
	// and only read afterwards.
	MatchingStatus    string        `gorm:"column:matching_status;size:20;not null;default:pending" json:"matching_status"`
	PendingTrainerIDs pq.Int64Array `gorm:"column:pending_trainer_ids;type:bigint[]" json:"pending_trainer_ids"`
	FallbackToAdmin   bool          `gorm:"column:fallback_to_admin;default:false" json:"fallback_to_admin"`
	NotifiedAt        *time.Time    `gorm:"column:notified_at" json:"notified_at,omitempty"`
	AutoMatchDeadline *time.Time    `gorm:"column:auto_match_deadline" json:"auto_match_deadline,omitempty"`
	AdminNotifiedAt   *time.Time    `gorm:"column:admin_notified_at" json:"admin_notified_at,omitempty"`

	TrainerConfirmedAt *time.Time `gorm:"column:trainer_confirmed_at" json:"trainer_confirmed_at,omitempty"`
	AdminMatchedAt     *time.Time `gorm:"column:admin_matched_at" json:"admin_matched_at,omitempty"`
	AdminMatchedBy     *uint      `gorm:"column:admin_matched_by" json:"admin_matched_by,omitempty"`

	Customer *User    `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Trainer  *Trainer `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
}

// SessionMultiplier returns the participant count used to derive the total
// price from a trainer's hourly rate.
func (b *Booking) SessionMultiplier() int {
	switch b.SessionType {
	case SessionTwoOnOne:
		return 2
	case SessionThreeOnOne:
		return 3
	default:
		return 1
	}
}

// HasPendingTrainer reports whether the trainer is part of the notify-set.
func (b *Booking) HasPendingTrainer(trainerID uint) bool {
	for _, id := range b.PendingTrainerIDs {
		if id == int64(trainerID) {
			return true
		}
	}
	return false
}

// Trainer match responses. One append-only row per (booking, trainer,
// attempt); the durable record of the race outcome for every participant.
const (
	ResponseAccepted = "accepted"
	ResponseDeclined = "declined"
	ResponseTooLate  = "too_late"
)

type TrainerMatchResponse struct {
	gorm.Model
	BookingID     uint   `gorm:"column:booking_id;not null;index" json:"booking_id"`
	TrainerID     uint   `gorm:"column:trainer_id;not null;index" json:"trainer_id"`
	ResponseType  string `gorm:"column:response_type;size:20;not null" json:"response_type"`
	DeclineReason string `gorm:"column:decline_reason;size:100" json:"decline_reason,omitempty"`
	Note          string `gorm:"column:note;type:text" json:"note,omitempty"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`
	Trainer *Trainer `gorm:"foreignKey:TrainerID" json:"-"`
}

func (TrainerMatchResponse) TableName() string {
	return "trainer_match_responses"
}
