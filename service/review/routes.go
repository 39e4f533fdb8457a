package review

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
)

type ReviewHandler struct {
	db *gorm.DB
}

func NewReviewHandler(db *gorm.DB) *ReviewHandler {
	return &ReviewHandler{db: db}
}

func (h *ReviewHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/reviews", utils.AuthMiddleware(h.CreateReview)).Methods("POST")
	router.HandleFunc("/trainers/{trainerId}/reviews", h.GetTrainerReviews).Methods("GET")
	router.HandleFunc("/reviews/{id}", h.GetReview).Methods("GET")
	router.HandleFunc("/reviews/{id}/hide", utils.RequireRole(models.RoleAdmin, h.HideReview)).Methods("POST")
	router.HandleFunc("/reviews/{id}/unhide", utils.RequireRole(models.RoleAdmin, h.UnhideReview)).Methods("POST")
}

// CreateReview lets the customer of a completed booking leave a rating.
// One review per booking.
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var reviewRequest struct {
		BookingID uint    `json:"booking_id"`
		Rating    float64 `json:"rating"`
		Comment   string  `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reviewRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if reviewRequest.Rating < 1 || reviewRequest.Rating > 5 {
		http.Error(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, reviewRequest.BookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	if booking.CustomerID != userID {
		http.Error(w, "You can only review your own bookings", http.StatusForbidden)
		return
	}
	if booking.Status != models.StatusCompleted {
		http.Error(w, "Booking is not completed", http.StatusBadRequest)
		return
	}
	if booking.TrainerID == nil {
		http.Error(w, "Booking has no trainer", http.StatusBadRequest)
		return
	}

	var existing models.Review
	result := h.db.Where("booking_id = ?", booking.ID).First(&existing)
	if result.Error == nil {
		http.Error(w, "Booking already reviewed", http.StatusConflict)
		return
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	review := models.Review{
		BookingID:  booking.ID,
		CustomerID: userID,
		TrainerID:  *booking.TrainerID,
		Rating:     reviewRequest.Rating,
		Comment:    reviewRequest.Comment,
	}

	tx := h.db.Begin()
	if err := tx.Create(&review).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating review", http.StatusInternalServerError)
		return
	}
	if err := h.recalculateRating(tx, review.TrainerID); err != nil {
		tx.Rollback()
		http.Error(w, "Error updating trainer rating", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(review)
}

func (h *ReviewHandler) GetTrainerReviews(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["trainerId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 20

	query := h.db.Model(&models.Review{}).
		Where("trainer_id = ? AND is_hidden = ?", trainerID, false)

	var total int64
	query.Count(&total)

	var reviews []models.Review
	if err := query.Preload("Customer").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&reviews).Error; err != nil {
		http.Error(w, "Error retrieving reviews", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reviews":     reviews,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reviewID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	var review models.Review
	if err := h.db.Preload("Customer").First(&review, reviewID).Error; err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(review)
}

func (h *ReviewHandler) HideReview(w http.ResponseWriter, r *http.Request) {
	h.setHidden(w, r, true, "Review hidden successfully")
}

func (h *ReviewHandler) UnhideReview(w http.ResponseWriter, r *http.Request) {
	h.setHidden(w, r, false, "Review unhidden successfully")
}

func (h *ReviewHandler) setHidden(w http.ResponseWriter, r *http.Request, hidden bool, message string) {
	vars := mux.Vars(r)
	reviewID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	var review models.Review
	if err := h.db.First(&review, reviewID).Error; err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}

	tx := h.db.Begin()
	if err := tx.Model(&review).Update("is_hidden", hidden).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating review", http.StatusInternalServerError)
		return
	}
	if err := h.recalculateRating(tx, review.TrainerID); err != nil {
		tx.Rollback()
		http.Error(w, "Error updating trainer rating", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": message,
	})
}

// recalculateRating refreshes the trainer's aggregate from visible reviews.
func (h *ReviewHandler) recalculateRating(tx *gorm.DB, trainerID uint) error {
	var stats struct {
		Avg   float64
		Count int64
	}
	if err := tx.Model(&models.Review{}).
		Where("trainer_id = ? AND is_hidden = ?", trainerID, false).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Scan(&stats).Error; err != nil {
		return err
	}

	return tx.Model(&models.Trainer{}).Where("id = ?", trainerID).Updates(map[string]interface{}{
		"average_rating": stats.Avg,
		"total_reviews":  stats.Count,
	}).Error
}
