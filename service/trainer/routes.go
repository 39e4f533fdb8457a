package trainer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
)

type TrainerHandler struct {
	db *gorm.DB
}

func NewTrainerHandler(db *gorm.DB) *TrainerHandler {
	return &TrainerHandler{db: db}
}

func (h *TrainerHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/trainers", h.GetTrainers).Methods("GET")
	router.HandleFunc("/trainers/search", h.SearchTrainers).Methods("GET")
	router.HandleFunc("/trainers/{id}", h.GetTrainer).Methods("GET")
	router.HandleFunc("/trainers/{id}", utils.AuthMiddleware(h.UpdateTrainer)).Methods("PUT")
	router.HandleFunc("/trainers/verify/{id}", utils.RequireRole(models.RoleAdmin, h.VerifyTrainer)).Methods("POST")
	router.HandleFunc("/trainers/{id}/deactivate", utils.RequireRole(models.RoleAdmin, h.DeactivateTrainer)).Methods("POST")
}

func (h *TrainerHandler) GetTrainers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 20

	query := h.db.Model(&models.Trainer{}).Preload("User").Preload("Center").
		Where("is_active = ?", true)

	if serviceType := r.URL.Query().Get("service_type"); serviceType != "" {
		switch serviceType {
		case models.ServiceHomeVisit:
			query = query.Where("home_visit_available = ?", true)
		case models.ServiceCenterVisit:
			query = query.Where("center_visit_available = ?", true)
		case models.ServiceOnline:
			query = query.Where("online_available = ?", true)
		}
	}
	if verified := r.URL.Query().Get("verified"); verified == "true" {
		query = query.Where("is_verified = ?", true)
	}
	if maxRate := r.URL.Query().Get("max_hourly_rate"); maxRate != "" {
		if rate, err := strconv.ParseFloat(maxRate, 64); err == nil {
			query = query.Where("hourly_rate <= ?", rate)
		}
	}

	var total int64
	query.Count(&total)

	var trainers []models.Trainer
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("average_rating DESC, id ASC").Find(&trainers).Error; err != nil {
		http.Error(w, "Error retrieving trainers", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"trainers":    trainers,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// SearchTrainers matches the query against specialties and service areas.
func (h *TrainerHandler) SearchTrainers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "Query parameter q is required", http.StatusBadRequest)
		return
	}

	var trainers []models.Trainer
	pattern := "%" + q + "%"
	if err := h.db.Preload("User").
		Where("is_active = ? AND (array_to_string(specialties, ',') ILIKE ? OR array_to_string(service_areas, ',') ILIKE ?)",
			true, pattern, pattern).
		Limit(50).
		Find(&trainers).Error; err != nil {
		http.Error(w, "Error searching trainers", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"trainers": trainers,
		"total":    len(trainers),
	})
}

func (h *TrainerHandler) GetTrainer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	var trainer models.Trainer
	if err := h.db.Preload("User").Preload("Center").First(&trainer, trainerID).Error; err != nil {
		http.Error(w, "Trainer not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trainer)
}

func (h *TrainerHandler) UpdateTrainer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var trainer models.Trainer
	if err := h.db.First(&trainer, trainerID).Error; err != nil {
		http.Error(w, "Trainer not found", http.StatusNotFound)
		return
	}
	role, _ := utils.GetRoleFromContext(r)
	if trainer.UserID != userID && role != models.RoleAdmin {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var updateData models.Trainer
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	trainer.Bio = updateData.Bio
	trainer.YearsExperience = updateData.YearsExperience
	trainer.HourlyRate = updateData.HourlyRate
	trainer.Specialties = updateData.Specialties
	trainer.ServiceAreas = updateData.ServiceAreas
	trainer.Certifications = updateData.Certifications
	trainer.HomeVisitAvailable = updateData.HomeVisitAvailable
	trainer.CenterVisitAvailable = updateData.CenterVisitAvailable
	trainer.OnlineAvailable = updateData.OnlineAvailable
	trainer.CenterID = updateData.CenterID

	if err := h.db.Save(&trainer).Error; err != nil {
		http.Error(w, "Error updating trainer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trainer)
}

func (h *TrainerHandler) VerifyTrainer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.Trainer{}).Where("id = ?", trainerID).
		Update("is_verified", true)
	if result.Error != nil {
		http.Error(w, "Error verifying trainer", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Trainer not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Trainer verified successfully",
	})
}

func (h *TrainerHandler) DeactivateTrainer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.Trainer{}).Where("id = ?", trainerID).
		Update("is_active", false)
	if result.Error != nil {
		http.Error(w, "Error deactivating trainer", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Trainer not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Trainer deactivated successfully",
	})
}
