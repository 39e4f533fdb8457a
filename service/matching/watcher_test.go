package matching

import (
	"testing"
	"time"
)

func TestSweepOverdueFlipsOnlyElapsedBookings(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	overdue := seedBooking(store, 1, 1, 2)
	past := now.Add(-time.Minute)
	overdue.AutoMatchDeadline = &past

	fresh := seedBooking(store, 2, 1, 2)
	future := now.Add(10 * time.Minute)
	fresh.AutoMatchDeadline = &future

	claimed := seedBooking(store, 3, 1)
	claimed.AutoMatchDeadline = &past
	trainerID := uint(1)
	claimed.TrainerID = &trainerID

	sink := &fakeSink{}
	engine := NewEngine(store, &fakeNotifier{}, sink, testConfig())

	flipped, err := engine.SweepOverdue(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flipped) != 1 || flipped[0].ID != 1 {
		t.Fatalf("expected only booking 1 to flip, got %d flips", len(flipped))
	}

	booking, _ := store.BookingByID(1)
	if !booking.FallbackToAdmin {
		t.Fatalf("overdue booking not flagged for admin")
	}
	if booking.AdminNotifiedAt == nil {
		t.Fatalf("admin_notified_at not stamped")
	}
	if booking.MatchingStatus != "pending" {
		t.Fatalf("fallback must not leave the pending matching status, got %s", booking.MatchingStatus)
	}

	untouched, _ := store.BookingByID(2)
	if untouched.FallbackToAdmin {
		t.Fatalf("unexpired booking was flipped")
	}
	won, _ := store.BookingByID(3)
	if won.FallbackToAdmin {
		t.Fatalf("claimed booking was flipped")
	}

	if len(sink.events) != 1 || sink.events[0].Type != EventFallback {
		t.Fatalf("expected one fallback event, got %v", sink.events)
	}

	// Second sweep is a no-op: the flip happens exactly once.
	again, err := engine.SweepOverdue(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no flips on second sweep, got %d", len(again))
	}
}
