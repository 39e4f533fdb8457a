package matching

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
)

// fakeStore mimics the database's conditional-update semantics under a
// mutex, so the engine's race behavior can be exercised with goroutines.
type fakeStore struct {
	mu        sync.Mutex
	bookings  map[uint]*models.Booking
	trainers  map[uint]*models.Trainer
	responses []models.TrainerMatchResponse
	workload  map[uint]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: make(map[uint]*models.Booking),
		trainers: make(map[uint]*models.Trainer),
		workload: make(map[uint]int),
	}
}

func (s *fakeStore) BookingByID(id uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *fakeStore) TrainerByID(id uint) (*models.Trainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trainers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *fakeStore) TrainerByUserID(userID uint) (*models.Trainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trainers {
		if t.UserID == userID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) EligibleTrainers() ([]models.Trainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trainer
	for _, t := range s.trainers {
		if t.IsVerified && t.IsActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeStore) ActiveBookingCounts(trainerIDs []uint) (map[uint]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uint]int)
	for _, id := range trainerIDs {
		counts[id] = s.workload[id]
	}
	return counts, nil
}

func (s *fakeStore) SetNotifySet(bookingID uint, trainerIDs []int64, notifiedAt, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.PendingTrainerIDs = pq.Int64Array(trainerIDs)
	b.NotifiedAt = &notifiedAt
	b.AutoMatchDeadline = &deadline
	return nil
}

func (s *fakeStore) ClaimBooking(bookingID uint, claim Claim) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return false, nil
	}
	if b.MatchingStatus != models.MatchingPending || b.TrainerID != nil {
		return false, nil
	}
	trainerID := claim.TrainerID
	confirmedAt := claim.ConfirmedAt
	b.TrainerID = &trainerID
	b.MatchingStatus = models.MatchingApproved
	b.Status = models.StatusConfirmed
	b.TrainerConfirmedAt = &confirmedAt
	b.PricePerPerson = claim.PricePerPerson
	b.TotalPrice = claim.TotalPrice
	return true, nil
}

func (s *fakeStore) AssignTrainer(bookingID uint, assignment Assignment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return false, nil
	}
	if b.BookingType != models.BookingRecommended || b.TrainerID != nil {
		return false, nil
	}
	trainerID := assignment.TrainerID
	adminID := assignment.AdminID
	matchedAt := assignment.MatchedAt
	b.TrainerID = &trainerID
	b.MatchingStatus = models.MatchingMatched
	b.Status = models.StatusPending
	b.AdminMatchedAt = &matchedAt
	b.AdminMatchedBy = &adminID
	b.PricePerPerson = assignment.PricePerPerson
	b.TotalPrice = assignment.TotalPrice
	return true, nil
}

func (s *fakeStore) LogResponse(resp *models.TrainerMatchResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, *resp)
	return nil
}

func (s *fakeStore) HasDeclined(bookingID, trainerID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.responses {
		if r.BookingID == bookingID && r.TrainerID == trainerID && r.ResponseType == models.ResponseDeclined {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ExpireOverdue(now time.Time) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var flipped []models.Booking
	for _, b := range s.bookings {
		if b.BookingType != models.BookingRecommended ||
			b.MatchingStatus != models.MatchingPending ||
			b.TrainerID != nil || b.FallbackToAdmin ||
			b.AutoMatchDeadline == nil || !b.AutoMatchDeadline.Before(now) {
			continue
		}
		notifiedAt := now
		b.FallbackToAdmin = true
		b.AdminNotifiedAt = &notifiedAt
		flipped = append(flipped, *b)
	}
	return flipped, nil
}

func (s *fakeStore) AwaitingAdmin() ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.FallbackToAdmin && b.TrainerID == nil && b.Status != models.StatusCancelled {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeStore) MatchingStats(since time.Time) (Stats, error) {
	return Stats{}, nil
}

func (s *fakeStore) responseCount(responseType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.responses {
		if r.ResponseType == responseType {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []uint
}

func (n *fakeNotifier) NotifyUser(userID uint, title, body string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, userID)
}

type fakeSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *fakeSink) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func testConfig() Config {
	return Config{
		AcceptWindow:            30 * time.Minute,
		MaxCandidates:           5,
		WatchInterval:           time.Minute,
		AllowAcceptAfterDecline: true,
	}
}

func seedBooking(store *fakeStore, id uint, pending ...int64) *models.Booking {
	b := &models.Booking{
		Model:             gorm.Model{ID: id},
		Reference:         fmt.Sprintf("BK-%d", id),
		CustomerID:        500,
		BookingType:       models.BookingRecommended,
		ServiceType:       models.ServiceHomeVisit,
		SessionType:       models.SessionTwoOnOne,
		BookingDate:       time.Now().Add(72 * time.Hour),
		StartTime:         time.Now().Add(72 * time.Hour),
		DurationMinutes:   60,
		Status:            models.StatusPending,
		MatchingStatus:    models.MatchingPending,
		PendingTrainerIDs: pq.Int64Array(pending),
	}
	store.bookings[id] = b
	return b
}

func seedTrainer(store *fakeStore, id uint, rate float64) *models.Trainer {
	t := &models.Trainer{
		Model:              gorm.Model{ID: id},
		UserID:             id + 100,
		HourlyRate:         rate,
		HomeVisitAvailable: true,
		IsVerified:         true,
		IsActive:           true,
	}
	store.trainers[id] = t
	return t
}

func TestAcceptExactlyOneWinner(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, 1, 1, 2, 3, 4, 5)
	for id := uint(1); id <= 5; id++ {
		seedTrainer(store, id, 80000)
	}
	engine := NewEngine(store, &fakeNotifier{}, &fakeSink{}, testConfig())

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.AcceptBooking(1, uint(i+1))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyClaimed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	booking, _ := store.BookingByID(1)
	if booking.TrainerID == nil {
		t.Fatalf("booking has no trainer after race")
	}
	if booking.MatchingStatus != models.MatchingApproved {
		t.Fatalf("matching status = %s, want %s", booking.MatchingStatus, models.MatchingApproved)
	}
	if got := store.responseCount(models.ResponseAccepted); got != 1 {
		t.Fatalf("accepted responses = %d, want 1", got)
	}
	if got := store.responseCount(models.ResponseTooLate); got != 4 {
		t.Fatalf("too_late responses = %d, want 4", got)
	}
}

func TestAcceptRequiresMembership(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, 1, 1, 2)
	seedTrainer(store, 9, 80000)
	engine := NewEngine(store, &fakeNotifier{}, &fakeSink{}, testConfig())

	if _, err := engine.AcceptBooking(1, 9); !errors.Is(err, ErrNotOffered) {
		t.Fatalf("expected ErrNotOffered, got %v", err)
	}
	booking, _ := store.BookingByID(1)
	if booking.TrainerID != nil {
		t.Fatalf("booking mutated by non-member accept")
	}
}

func TestAcceptAfterLossIsDeterministicFailure(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, 1, 1, 2)
	seedTrainer(store, 1, 80000)
	seedTrainer(store, 2, 90000)
	engine := NewEngine(store, &fakeNotifier{}, &fakeSink{}, testConfig())

	if _, err := engine.AcceptBooking(1, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Loser retries, winner retries: both must get the same final answer.
	if _, err := engine.AcceptBooking(1, 2); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed for loser, got %v", err)
	}
	if _, err := engine.AcceptBooking(1, 1); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed for repeat winner, got %v", err)
	}

	booking, _ := store.BookingByID(1)
	if booking.TrainerID == nil || *booking.TrainerID != 1 {
		t.Fatalf("winner changed after repeat accepts")
	}
}

func TestAcceptRejectsDirectBookings(t *testing.T) {
	store := newFakeStore()
	b := seedBooking(store, 1, 1)
	b.BookingType = models.BookingDirect
	seedTrainer(store, 1, 80000)
	engine := NewEngine(store, &fakeNotifier{}, &fakeSink{}, testConfig())

	if _, err := engine.AcceptBooking(1, 1); !errors.Is(err, ErrNotRecommended) {
		t.Fatalf("expected ErrNotRecommended, got %v", err)
	}
}

func TestAcceptDerivesPriceFromSessionType(t *testing.T) {
	cases := []struct {
		sessionType string
		multiplier  float64
	}{
		{models.SessionOneOnOne, 1},
		{models.SessionTwoOnOne, 2},
		{models.SessionThreeOnOne, 3},
	}

	for _, tc := range cases {
		t.Run(tc.sessionType, func(t *testing.T) {
			store := newFakeStore()
			b := seedBooking(store, 1, 1)
			b.SessionType = tc.sessionType
			seedTrainer(store, 1, 90000)
			engine := NewEngine(store, &fakeNotifier{}, &fakeSink{}, testConfig())

			booking, err := engine.AcceptBooking(1, 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if booking.PricePerPerson != 90000 {
				t.Fatalf("price_per_person = %v, want 90000", booking.PricePerPerson)
			}
			if want := 90000 * tc.multiplier; booking.TotalPrice != want {
				t.Fatalf("total_price = %v, want %v", booking.TotalPrice, want)
			}
		})
	}
}

func TestDeclineIsAuditOnly(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, 1, 1, 2)
	seedTrainer(store, 1, 80000)
	engine := NewEngine(store, &fakeNotifier{}, &fakeSink{}, testConfig())

	if err := engine.DeclineBooking(1, 1, "schedule_conflict", "out of town"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	booking, _ := store.BookingByID(1)
	if booking.TrainerID != nil || booking.MatchingStatus != models.MatchingPending {
		t.Fatalf("decline mutated booking state")
	}
	if len(booking.PendingTrainerIDs) != 2 {
		t.Fatalf("decline pruned the notify-set")
	}
	if got := store.responseCount(models.ResponseDeclined); got != 1 {
		t.Fatalf("declined responses = %d, want 1", got)
	}
}

func TestDeclineThenAcceptConfigurable(t *testing.T) {
	// Default: a decline is advisory, the trainer may still accept.
	store := newFakeStore()
	seedBooking(store, 1, 1)
	seedTrainer(store, 1, 80000)
	engine := NewEngine(store, &fakeNotifier{}, &fakeSink{}, testConfig())

	if err := engine.DeclineBooking(1, 1, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.AcceptBooking(1, 1); err != nil {
		t.Fatalf("decline-then-accept should succeed by default, got %v", err)
	}

	// Strict mode: a declined trainer is out.
	store = newFakeStore()
	seedBooking(store, 1, 1)
	seedTrainer(store, 1, 80000)
	cfg := testConfig()
	cfg.AllowAcceptAfterDecline = false
	engine = NewEngine(store, &fakeNotifier{}, &fakeSink{}, cfg)

	if err := engine.DeclineBooking(1, 1, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.AcceptBooking(1, 1); !errors.Is(err, ErrNotOffered) {
		t.Fatalf("expected ErrNotOffered in strict mode, got %v", err)
	}
}

func TestAdminAssign(t *testing.T) {
	store := newFakeStore()
	b := seedBooking(store, 1, 1, 2)
	b.FallbackToAdmin = true
	seedTrainer(store, 3, 100000)
	notifier := &fakeNotifier{}
	engine := NewEngine(store, notifier, &fakeSink{}, testConfig())

	booking, err := engine.AssignTrainer(1, 3, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.TrainerID == nil || *booking.TrainerID != 3 {
		t.Fatalf("trainer not assigned")
	}
	if booking.MatchingStatus != models.MatchingMatched {
		t.Fatalf("matching status = %s, want %s", booking.MatchingStatus, models.MatchingMatched)
	}
	if booking.Status != models.StatusPending {
		t.Fatalf("status = %s, want %s", booking.Status, models.StatusPending)
	}
	if booking.AdminMatchedBy == nil || *booking.AdminMatchedBy != 42 {
		t.Fatalf("admin audit fields not recorded")
	}
	if booking.TotalPrice != 200000 {
		t.Fatalf("total_price = %v, want 200000", booking.TotalPrice)
	}

	// Second assignment must be rejected, not retried.
	seedTrainer(store, 4, 80000)
	if _, err := engine.AssignTrainer(1, 4, 42); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
}

func TestNotifyCandidates(t *testing.T) {
	store := newFakeStore()
	seedBooking(store, 1)
	store.bookings[1].MaxHourlyRate = 100000
	seedTrainer(store, 1, 80000)
	seedTrainer(store, 2, 90000)
	overBudget := seedTrainer(store, 3, 150000)
	inactive := seedTrainer(store, 4, 70000)
	inactive.IsActive = false
	notifier := &fakeNotifier{}
	sink := &fakeSink{}
	engine := NewEngine(store, notifier, sink, testConfig())

	candidates, err := engine.NotifyCandidates(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("notified %d candidates, want 2", len(candidates))
	}
	for _, c := range candidates {
		if c.Trainer.ID == overBudget.ID {
			t.Fatalf("over-budget trainer was notified")
		}
		if c.Trainer.ID == inactive.ID {
			t.Fatalf("inactive trainer was notified")
		}
	}

	booking, _ := store.BookingByID(1)
	if len(booking.PendingTrainerIDs) != 2 {
		t.Fatalf("notify-set size = %d, want 2", len(booking.PendingTrainerIDs))
	}
	if booking.NotifiedAt == nil || booking.AutoMatchDeadline == nil {
		t.Fatalf("notify timestamps not persisted")
	}
	if got := booking.AutoMatchDeadline.Sub(*booking.NotifiedAt); got != 30*time.Minute {
		t.Fatalf("accept window = %v, want 30m", got)
	}

	if _, err := engine.NotifyCandidates(1); !errors.Is(err, ErrAlreadyNotified) {
		t.Fatalf("expected ErrAlreadyNotified on second pass, got %v", err)
	}
}
