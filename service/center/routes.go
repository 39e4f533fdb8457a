package center

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
)

type CenterHandler struct {
	db *gorm.DB
}

func NewCenterHandler(db *gorm.DB) *CenterHandler {
	return &CenterHandler{db: db}
}

func (h *CenterHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/centers", h.GetCenters).Methods("GET")
	router.HandleFunc("/centers", utils.AuthMiddleware(h.CreateCenter)).Methods("POST")
	router.HandleFunc("/centers/{id}", h.GetCenter).Methods("GET")
	router.HandleFunc("/centers/{id}", utils.AuthMiddleware(h.UpdateCenter)).Methods("PUT")
	router.HandleFunc("/centers/{id}/approve", utils.RequireRole(models.RoleAdmin, h.ApproveCenter)).Methods("POST")
	router.HandleFunc("/centers/{id}", utils.RequireRole(models.RoleAdmin, h.DeleteCenter)).Methods("DELETE")
}

func (h *CenterHandler) CreateCenter(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var center models.Center
	if err := json.NewDecoder(r.Body).Decode(&center); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if center.Name == "" || center.Address == "" {
		http.Error(w, "Name and address are required", http.StatusBadRequest)
		return
	}

	center.OwnerUserID = userID
	center.IsApproved = false

	if err := h.db.Create(&center).Error; err != nil {
		http.Error(w, "Error creating center", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(center)
}

func (h *CenterHandler) GetCenters(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 20

	query := h.db.Model(&models.Center{})
	// Unapproved centers are only listed when explicitly requested (admin UI).
	if r.URL.Query().Get("include_unapproved") != "true" {
		query = query.Where("is_approved = ?", true)
	}

	var total int64
	query.Count(&total)

	var centers []models.Center
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("name ASC").Find(&centers).Error; err != nil {
		http.Error(w, "Error retrieving centers", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"centers":     centers,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *CenterHandler) GetCenter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	centerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid center ID", http.StatusBadRequest)
		return
	}

	var center models.Center
	if err := h.db.Preload("Trainers").First(&center, centerID).Error; err != nil {
		http.Error(w, "Center not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(center)
}

func (h *CenterHandler) UpdateCenter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	centerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid center ID", http.StatusBadRequest)
		return
	}

	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var center models.Center
	if err := h.db.First(&center, centerID).Error; err != nil {
		http.Error(w, "Center not found", http.StatusNotFound)
		return
	}
	role, _ := utils.GetRoleFromContext(r)
	if center.OwnerUserID != userID && role != models.RoleAdmin {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var updateData models.Center
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	center.Name = updateData.Name
	center.Address = updateData.Address
	center.Phone = updateData.Phone
	center.Description = updateData.Description

	if err := h.db.Save(&center).Error; err != nil {
		http.Error(w, "Error updating center", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(center)
}

func (h *CenterHandler) ApproveCenter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	centerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid center ID", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.Center{}).Where("id = ?", centerID).
		Update("is_approved", true)
	if result.Error != nil {
		http.Error(w, "Error approving center", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Center not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Center approved successfully",
	})
}

func (h *CenterHandler) DeleteCenter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	centerID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid center ID", http.StatusBadRequest)
		return
	}

	result := h.db.Delete(&models.Center{}, centerID)
	if result.Error != nil {
		http.Error(w, "Error deleting center", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Center not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Center deleted successfully",
	})
}
