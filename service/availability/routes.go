package availability

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
)

type AvailabilityHandler struct {
	db *gorm.DB
}

func NewAvailabilityHandler(db *gorm.DB) *AvailabilityHandler {
	return &AvailabilityHandler{db: db}
}

func (h *AvailabilityHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/trainers/{trainerId}/availability", utils.AuthMiddleware(h.CreateAvailability)).Methods("POST")
	router.HandleFunc("/trainers/{trainerId}/availability", h.GetAvailabilities).Methods("GET")
	router.HandleFunc("/trainers/{trainerId}/availability/{id}", utils.AuthMiddleware(h.DeleteAvailability)).Methods("DELETE")
	router.HandleFunc("/trainers/{trainerId}/availability/date/{date}", h.GetAvailabilitiesByDate).Methods("GET")
}

func (h *AvailabilityHandler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.Atoi(vars["trainerId"])
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	var availability models.Availability
	if err := json.NewDecoder(r.Body).Decode(&availability); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if availability.EndTime.Before(availability.StartTime) {
		http.Error(w, "End time must be after start time", http.StatusBadRequest)
		return
	}

	var existingAvailability models.Availability
	overlap := h.db.Where("trainer_id = ? AND date = ? AND ((start_time < ? AND end_time > ?) OR (start_time < ? AND end_time > ?))",
		trainerID,
		availability.Date,
		availability.EndTime,
		availability.StartTime,
		availability.StartTime,
		availability.EndTime,
	).First(&existingAvailability)

	if overlap.Error != nil && overlap.Error != gorm.ErrRecordNotFound {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if overlap.Error == nil {
		http.Error(w, "Time slot overlaps with existing availability", http.StatusConflict)
		return
	}

	availability.TrainerID = uint(trainerID)

	if err := h.db.Create(&availability).Error; err != nil {
		http.Error(w, "Error creating availability", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(availability)
}

func (h *AvailabilityHandler) GetAvailabilities(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["trainerId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 10

	query := h.db.Model(&models.Availability{}).Where("trainer_id = ?", trainerID)

	if startDate != "" {
		query = query.Where("date >= ?", startDate)
	}
	if endDate != "" {
		query = query.Where("date <= ?", endDate)
	}

	var total int64
	query.Count(&total)

	var availabilities []models.Availability
	result := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&availabilities)
	if result.Error != nil {
		http.Error(w, "Error retrieving availabilities", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"availabilities": availabilities,
		"total":          total,
		"page":           page,
		"page_size":      pageSize,
		"total_pages":    (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *AvailabilityHandler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["trainerId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	availabilityID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid availability ID", http.StatusBadRequest)
		return
	}

	result := h.db.Where("id = ? AND trainer_id = ?", availabilityID, trainerID).Delete(&models.Availability{})
	if result.Error != nil {
		http.Error(w, "Error deleting availability", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Availability not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Availability deleted successfully",
	})
}

func (h *AvailabilityHandler) GetAvailabilitiesByDate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["trainerId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	dateStr := vars["date"]
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var availabilities []models.Availability
	if err := h.db.Where("trainer_id = ? AND date = ?", trainerID, date).Find(&availabilities).Error; err != nil {
		http.Error(w, "Error retrieving availabilities", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(availabilities)
}
