package matching

import (
	"time"

	"github.com/silvercare/silvercare-server/cmd/models"
)

// Claim is the mutation applied when a trainer wins the accept race. The
// store must apply it in a single conditional update so the race is decided
// by the database, never by a read-then-write pair.
type Claim struct {
	TrainerID      uint
	PricePerPerson float64
	TotalPrice     float64
	ConfirmedAt    time.Time
}

// Assignment is the mutation applied by an admin manually matching a
// booking.
type Assignment struct {
	TrainerID      uint
	AdminID        uint
	PricePerPerson float64
	TotalPrice     float64
	MatchedAt      time.Time
}

// Stats are the aggregate counts shown on the admin monitoring view.
type Stats struct {
	Pending       int64 `json:"pending"`
	AwaitingAdmin int64 `json:"awaiting_admin"`
	MatchedToday  int64 `json:"matched_today"`
	Total         int64 `json:"total"`
}

// Store is the persistence boundary of the matching engine.
type Store interface {
	BookingByID(id uint) (*models.Booking, error)
	TrainerByID(id uint) (*models.Trainer, error)
	TrainerByUserID(userID uint) (*models.Trainer, error)

	// EligibleTrainers returns verified, active trainers.
	EligibleTrainers() ([]models.Trainer, error)
	// ActiveBookingCounts returns, per trainer, the number of pending or
	// confirmed bookings with a future booking date.
	ActiveBookingCounts(trainerIDs []uint) (map[uint]int, error)

	// SetNotifySet persists the notify-set and the accept deadline.
	SetNotifySet(bookingID uint, trainerIDs []int64, notifiedAt, deadline time.Time) error

	// ClaimBooking applies the claim only if the booking is still pending
	// with no trainer assigned, and reports whether the row was won.
	ClaimBooking(bookingID uint, claim Claim) (bool, error)
	// AssignTrainer applies an admin assignment under the same trainer-is-null
	// condition and reports whether it took effect.
	AssignTrainer(bookingID uint, assignment Assignment) (bool, error)

	LogResponse(resp *models.TrainerMatchResponse) error
	HasDeclined(bookingID, trainerID uint) (bool, error)

	// ExpireOverdue flips bookings whose deadline has elapsed while still
	// unclaimed to admin fallback and returns the flipped rows.
	ExpireOverdue(now time.Time) ([]models.Booking, error)
	// AwaitingAdmin lists unclaimed bookings flagged for manual matching.
	AwaitingAdmin() ([]models.Booking, error)

	MatchingStats(since time.Time) (Stats, error)
}
