package matching

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/silvercare/silvercare-server/cmd/models"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrTrainerNotFound = errors.New("trainer not found")
	ErrNotRecommended  = errors.New("booking is not a recommended booking")
	ErrNotOffered      = errors.New("booking was not offered to this trainer")
	ErrAlreadyClaimed  = errors.New("booking already claimed by another trainer")
	ErrAlreadyAssigned = errors.New("booking already has a trainer assigned")
	ErrAlreadyNotified = errors.New("booking already has a notify-set")
)

// Notifier delivers a push notification to every device of a user. Sends are
// fire-and-forget; the engine never blocks on or fails from delivery.
type Notifier interface {
	NotifyUser(userID uint, title, body string, data map[string]string)
}

// EventSink receives matching lifecycle events, e.g. for the admin live feed.
type EventSink interface {
	Publish(event Event)
}

// Event types published to the sink.
const (
	EventNotified = "candidates_notified"
	EventMatched  = "matched"
	EventFallback = "fallback_to_admin"
)

type Event struct {
	Type      string    `json:"type"`
	BookingID uint      `json:"booking_id"`
	TrainerID uint      `json:"trainer_id,omitempty"`
	At        time.Time `json:"at"`
}

// Engine runs the trainer auto-matching allocation protocol: it picks and
// notifies candidates for recommended bookings, arbitrates the first-accept
// race, and handles manual admin assignment after a timeout.
type Engine struct {
	store    Store
	notifier Notifier
	events   EventSink
	cfg      Config
}

func NewEngine(store Store, notifier Notifier, events EventSink, cfg Config) *Engine {
	return &Engine{store: store, notifier: notifier, events: events, cfg: cfg}
}

// TrainerForUser resolves the trainer profile behind an authenticated user.
func (e *Engine) TrainerForUser(userID uint) (*models.Trainer, error) {
	trainer, err := e.store.TrainerByUserID(userID)
	if err != nil {
		return nil, ErrTrainerNotFound
	}
	return trainer, nil
}

// NotifyCandidates runs the automated pass for a freshly paid recommended
// booking: rank eligible trainers, persist the top within-budget candidates
// as the notify-set with an accept deadline, and push an offer to each.
func (e *Engine) NotifyCandidates(bookingID uint) ([]Candidate, error) {
	booking, err := e.store.BookingByID(bookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}
	if booking.BookingType != models.BookingRecommended {
		return nil, ErrNotRecommended
	}
	if booking.NotifiedAt != nil || len(booking.PendingTrainerIDs) > 0 {
		return nil, ErrAlreadyNotified
	}
	if booking.MatchingStatus != models.MatchingPending || booking.TrainerID != nil {
		return nil, ErrAlreadyClaimed
	}

	trainers, err := e.store.EligibleTrainers()
	if err != nil {
		return nil, fmt.Errorf("loading eligible trainers: %w", err)
	}
	trainerIDs := make([]uint, len(trainers))
	for i, t := range trainers {
		trainerIDs[i] = t.ID
	}
	workload, err := e.store.ActiveBookingCounts(trainerIDs)
	if err != nil {
		return nil, fmt.Errorf("loading trainer workload: %w", err)
	}

	ranked := RankTrainers(RequirementsFromBooking(booking), trainers, workload)

	notified := make([]Candidate, 0, e.cfg.MaxCandidates)
	notifySet := make([]int64, 0, e.cfg.MaxCandidates)
	for _, candidate := range ranked {
		if !candidate.IsWithinBudget {
			continue
		}
		notified = append(notified, candidate)
		notifySet = append(notifySet, int64(candidate.Trainer.ID))
		if len(notified) == e.cfg.MaxCandidates {
			break
		}
	}

	now := time.Now()
	deadline := now.Add(e.cfg.AcceptWindow)
	if err := e.store.SetNotifySet(booking.ID, notifySet, now, deadline); err != nil {
		return nil, fmt.Errorf("persisting notify-set: %w", err)
	}

	for _, candidate := range notified {
		e.notifier.NotifyUser(candidate.Trainer.UserID,
			"New session request",
			fmt.Sprintf("A %s session on %s is waiting for a trainer. First to accept wins.",
				booking.ServiceType, booking.BookingDate.Format("2006-01-02")),
			map[string]string{"booking_id": fmt.Sprintf("%d", booking.ID), "type": "match_offer"})
	}
	e.publish(Event{Type: EventNotified, BookingID: booking.ID, At: now})

	return notified, nil
}

// AcceptBooking attempts to claim a booking on behalf of a trainer. Exactly
// one of any number of concurrent accepts succeeds; the rest get
// ErrAlreadyClaimed and a too_late audit row. The decision is made by a
// single conditional update in the store, so the check and the write cannot
// be interleaved with a competing accept.
func (e *Engine) AcceptBooking(bookingID, trainerID uint) (*models.Booking, error) {
	trainer, err := e.store.TrainerByID(trainerID)
	if err != nil {
		return nil, ErrTrainerNotFound
	}
	booking, err := e.store.BookingByID(bookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}
	if booking.BookingType != models.BookingRecommended {
		return nil, ErrNotRecommended
	}
	if !booking.HasPendingTrainer(trainerID) {
		return nil, ErrNotOffered
	}
	if !e.cfg.AllowAcceptAfterDecline {
		declined, err := e.store.HasDeclined(bookingID, trainerID)
		if err != nil {
			return nil, fmt.Errorf("checking decline history: %w", err)
		}
		if declined {
			return nil, ErrNotOffered
		}
	}
	if booking.MatchingStatus != models.MatchingPending || booking.TrainerID != nil {
		e.logResponse(bookingID, trainerID, models.ResponseTooLate, "", "")
		return nil, ErrAlreadyClaimed
	}

	pricePerPerson := trainer.HourlyRate
	totalPrice := pricePerPerson * float64(booking.SessionMultiplier())

	now := time.Now()
	won, err := e.store.ClaimBooking(bookingID, Claim{
		TrainerID:      trainerID,
		PricePerPerson: pricePerPerson,
		TotalPrice:     totalPrice,
		ConfirmedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("claiming booking: %w", err)
	}
	if !won {
		e.logResponse(bookingID, trainerID, models.ResponseTooLate, "", "")
		return nil, ErrAlreadyClaimed
	}

	e.logResponse(bookingID, trainerID, models.ResponseAccepted, "", "")
	e.notifier.NotifyUser(booking.CustomerID,
		"Trainer confirmed",
		fmt.Sprintf("Your session on %s at %s is confirmed.",
			booking.BookingDate.Format("2006-01-02"), booking.StartTime.Format("15:04")),
		map[string]string{"booking_id": fmt.Sprintf("%d", booking.ID), "type": "match_confirmed"})
	e.publish(Event{Type: EventMatched, BookingID: booking.ID, TrainerID: trainerID, At: now})

	updated, err := e.store.BookingByID(bookingID)
	if err != nil {
		return nil, fmt.Errorf("reloading booking: %w", err)
	}
	return updated, nil
}

// DeclineBooking records a declined response. It mutates nothing on the
// booking itself: the trainer stays in the notify-set, and whether they may
// still accept later is governed by AllowAcceptAfterDecline.
func (e *Engine) DeclineBooking(bookingID, trainerID uint, reason, note string) error {
	if _, err := e.store.TrainerByID(trainerID); err != nil {
		return ErrTrainerNotFound
	}
	booking, err := e.store.BookingByID(bookingID)
	if err != nil {
		return ErrBookingNotFound
	}
	if booking.BookingType != models.BookingRecommended {
		return ErrNotRecommended
	}
	if !booking.HasPendingTrainer(trainerID) {
		return ErrNotOffered
	}

	resp := &models.TrainerMatchResponse{
		BookingID:     bookingID,
		TrainerID:     trainerID,
		ResponseType:  models.ResponseDeclined,
		DeclineReason: reason,
		Note:          note,
	}
	if err := e.store.LogResponse(resp); err != nil {
		return fmt.Errorf("recording decline: %w", err)
	}
	return nil
}

// AssignTrainer performs the manual admin match after automated matching has
// failed. The admin is the sole writer at this point, but the update is still
// conditional on the trainer slot being empty so a concurrent stale accept
// can never be silently overwritten.
func (e *Engine) AssignTrainer(bookingID, trainerID, adminID uint) (*models.Booking, error) {
	booking, err := e.store.BookingByID(bookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}
	if booking.BookingType != models.BookingRecommended {
		return nil, ErrNotRecommended
	}
	if booking.TrainerID != nil {
		return nil, ErrAlreadyAssigned
	}
	trainer, err := e.store.TrainerByID(trainerID)
	if err != nil {
		return nil, ErrTrainerNotFound
	}

	pricePerPerson := trainer.HourlyRate
	totalPrice := pricePerPerson * float64(booking.SessionMultiplier())

	now := time.Now()
	ok, err := e.store.AssignTrainer(bookingID, Assignment{
		TrainerID:      trainerID,
		AdminID:        adminID,
		PricePerPerson: pricePerPerson,
		TotalPrice:     totalPrice,
		MatchedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("assigning trainer: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyAssigned
	}

	e.notifier.NotifyUser(booking.CustomerID,
		"Trainer matched",
		fmt.Sprintf("A trainer has been matched for your session on %s.",
			booking.BookingDate.Format("2006-01-02")),
		map[string]string{"booking_id": fmt.Sprintf("%d", booking.ID), "type": "match_assigned"})
	e.notifier.NotifyUser(trainer.UserID,
		"New session assigned",
		fmt.Sprintf("You have been assigned a %s session on %s.",
			booking.ServiceType, booking.BookingDate.Format("2006-01-02")),
		map[string]string{"booking_id": fmt.Sprintf("%d", booking.ID), "type": "match_assigned"})
	e.publish(Event{Type: EventMatched, BookingID: booking.ID, TrainerID: trainerID, At: now})

	updated, err := e.store.BookingByID(bookingID)
	if err != nil {
		return nil, fmt.Errorf("reloading booking: %w", err)
	}
	return updated, nil
}

// CandidatesForBooking returns the ranked candidate list for the admin's
// manual-match view. Over-budget trainers are filtered out unless requested.
func (e *Engine) CandidatesForBooking(bookingID uint, includeOverBudget bool) ([]Candidate, error) {
	booking, err := e.store.BookingByID(bookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}
	if booking.BookingType != models.BookingRecommended {
		return nil, ErrNotRecommended
	}

	trainers, err := e.store.EligibleTrainers()
	if err != nil {
		return nil, fmt.Errorf("loading eligible trainers: %w", err)
	}
	trainerIDs := make([]uint, len(trainers))
	for i, t := range trainers {
		trainerIDs[i] = t.ID
	}
	workload, err := e.store.ActiveBookingCounts(trainerIDs)
	if err != nil {
		return nil, fmt.Errorf("loading trainer workload: %w", err)
	}

	ranked := RankTrainers(RequirementsFromBooking(booking), trainers, workload)
	if includeOverBudget {
		return ranked, nil
	}
	filtered := make([]Candidate, 0, len(ranked))
	for _, candidate := range ranked {
		if candidate.IsWithinBudget {
			filtered = append(filtered, candidate)
		}
	}
	return filtered, nil
}

// SweepOverdue flips bookings whose accept window has elapsed without a
// winner to admin fallback. Called by the deadline watcher.
func (e *Engine) SweepOverdue(now time.Time) ([]models.Booking, error) {
	flipped, err := e.store.ExpireOverdue(now)
	if err != nil {
		return flipped, fmt.Errorf("expiring overdue bookings: %w", err)
	}
	for _, booking := range flipped {
		e.publish(Event{Type: EventFallback, BookingID: booking.ID, At: now})
	}
	return flipped, nil
}

// AwaitingAdmin lists bookings that need manual matching.
func (e *Engine) AwaitingAdmin() ([]models.Booking, error) {
	return e.store.AwaitingAdmin()
}

// Stats returns the aggregate counts for the admin monitoring view.
func (e *Engine) Stats() (Stats, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return e.store.MatchingStats(midnight)
}

// logResponse appends an audit row. Best-effort: a failed audit write never
// fails the primary operation.
func (e *Engine) logResponse(bookingID, trainerID uint, responseType, reason, note string) {
	resp := &models.TrainerMatchResponse{
		BookingID:     bookingID,
		TrainerID:     trainerID,
		ResponseType:  responseType,
		DeclineReason: reason,
		Note:          note,
	}
	if err := e.store.LogResponse(resp); err != nil {
		log.Printf("Error recording %s response for booking %d trainer %d: %v",
			responseType, bookingID, trainerID, err)
	}
}

func (e *Engine) publish(event Event) {
	if e.events != nil {
		e.events.Publish(event)
	}
}
