package matching

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
)

// GormStore is the postgres-backed Store. The accept race is serialized by
// the database: ClaimBooking submits its precondition and mutation as one
// UPDATE, and the affected-row count decides the winner.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) BookingByID(id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (s *GormStore) TrainerByID(id uint) (*models.Trainer, error) {
	var trainer models.Trainer
	if err := s.db.Preload("User").First(&trainer, id).Error; err != nil {
		return nil, err
	}
	return &trainer, nil
}

func (s *GormStore) TrainerByUserID(userID uint) (*models.Trainer, error) {
	var trainer models.Trainer
	if err := s.db.Where("user_id = ?", userID).First(&trainer).Error; err != nil {
		return nil, err
	}
	return &trainer, nil
}

func (s *GormStore) EligibleTrainers() ([]models.Trainer, error) {
	var trainers []models.Trainer
	err := s.db.Preload("User").
		Where("is_verified = ? AND is_active = ?", true, true).
		Find(&trainers).Error
	return trainers, err
}

func (s *GormStore) ActiveBookingCounts(trainerIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(trainerIDs))
	if len(trainerIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		TrainerID uint
		Count     int
	}
	err := s.db.Model(&models.Booking{}).
		Select("trainer_id, count(*) as count").
		Where("trainer_id IN ? AND status IN ? AND booking_date > ?",
			trainerIDs, []string{models.StatusPending, models.StatusConfirmed}, time.Now()).
		Group("trainer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.TrainerID] = row.Count
	}
	return counts, nil
}

func (s *GormStore) SetNotifySet(bookingID uint, trainerIDs []int64, notifiedAt, deadline time.Time) error {
	return s.db.Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]interface{}{
			"pending_trainer_ids": pq.Int64Array(trainerIDs),
			"notified_at":         notifiedAt,
			"auto_match_deadline": deadline,
		}).Error
}

func (s *GormStore) ClaimBooking(bookingID uint, claim Claim) (bool, error) {
	result := s.db.Model(&models.Booking{}).
		Where("id = ? AND matching_status = ? AND trainer_id IS NULL",
			bookingID, models.MatchingPending).
		Updates(map[string]interface{}{
			"trainer_id":           claim.TrainerID,
			"matching_status":      models.MatchingApproved,
			"status":               models.StatusConfirmed,
			"trainer_confirmed_at": claim.ConfirmedAt,
			"price_per_person":     claim.PricePerPerson,
			"total_price":          claim.TotalPrice,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) AssignTrainer(bookingID uint, assignment Assignment) (bool, error) {
	result := s.db.Model(&models.Booking{}).
		Where("id = ? AND booking_type = ? AND trainer_id IS NULL",
			bookingID, models.BookingRecommended).
		Updates(map[string]interface{}{
			"trainer_id":       assignment.TrainerID,
			"matching_status":  models.MatchingMatched,
			"status":           models.StatusPending,
			"admin_matched_at": assignment.MatchedAt,
			"admin_matched_by": assignment.AdminID,
			"price_per_person": assignment.PricePerPerson,
			"total_price":      assignment.TotalPrice,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) LogResponse(resp *models.TrainerMatchResponse) error {
	return s.db.Create(resp).Error
}

func (s *GormStore) HasDeclined(bookingID, trainerID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.TrainerMatchResponse{}).
		Where("booking_id = ? AND trainer_id = ? AND response_type = ?",
			bookingID, trainerID, models.ResponseDeclined).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) ExpireOverdue(now time.Time) ([]models.Booking, error) {
	var due []models.Booking
	err := s.db.Where(
		"booking_type = ? AND matching_status = ? AND trainer_id IS NULL AND fallback_to_admin = ? AND auto_match_deadline IS NOT NULL AND auto_match_deadline < ?",
		models.BookingRecommended, models.MatchingPending, false, now).
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	flipped := make([]models.Booking, 0, len(due))
	for i := range due {
		// Conditional per row: an accept landing between the read above and
		// this write simply makes the flip a no-op.
		result := s.db.Model(&models.Booking{}).
			Where("id = ? AND matching_status = ? AND trainer_id IS NULL AND fallback_to_admin = ?",
				due[i].ID, models.MatchingPending, false).
			Updates(map[string]interface{}{
				"fallback_to_admin": true,
				"admin_notified_at": now,
			})
		if result.Error != nil {
			return flipped, result.Error
		}
		if result.RowsAffected == 1 {
			due[i].FallbackToAdmin = true
			notifiedAt := now
			due[i].AdminNotifiedAt = &notifiedAt
			flipped = append(flipped, due[i])
		}
	}
	return flipped, nil
}

func (s *GormStore) AwaitingAdmin() ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.Preload("Customer").
		Where("fallback_to_admin = ? AND trainer_id IS NULL AND status != ?",
			true, models.StatusCancelled).
		Order("admin_notified_at ASC").
		Find(&bookings).Error
	return bookings, err
}

func (s *GormStore) MatchingStats(since time.Time) (Stats, error) {
	var stats Stats

	if err := s.db.Model(&models.Booking{}).
		Where("booking_type = ? AND matching_status = ? AND trainer_id IS NULL AND fallback_to_admin = ?",
			models.BookingRecommended, models.MatchingPending, false).
		Count(&stats.Pending).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&models.Booking{}).
		Where("booking_type = ? AND fallback_to_admin = ? AND trainer_id IS NULL",
			models.BookingRecommended, true).
		Count(&stats.AwaitingAdmin).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&models.Booking{}).
		Where("booking_type = ? AND trainer_id IS NOT NULL AND (trainer_confirmed_at >= ? OR admin_matched_at >= ?)",
			models.BookingRecommended, since, since).
		Count(&stats.MatchedToday).Error; err != nil {
		return stats, err
	}
	if err := s.db.Model(&models.Booking{}).
		Where("booking_type = ?", models.BookingRecommended).
		Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
