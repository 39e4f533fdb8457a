package notification

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
)

type NotificationHandler struct {
	db       *gorm.DB
	notifier *PushNotifier
}

func NewNotificationHandler(db *gorm.DB, notifier *PushNotifier) *NotificationHandler {
	return &NotificationHandler{db: db, notifier: notifier}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/devices", utils.AuthMiddleware(h.RegisterDevice)).Methods("POST")
	router.HandleFunc("/devices/{id}", utils.AuthMiddleware(h.DeleteDevice)).Methods("DELETE")
	router.HandleFunc("/users/{userId}/devices", utils.AuthMiddleware(h.GetUserDevices)).Methods("GET")
	router.HandleFunc("/users/{userId}/notifications", utils.RequireRole(models.RoleAdmin, h.SendUserNotification)).Methods("POST")
	router.HandleFunc("/users/{userId}/history", utils.AuthMiddleware(h.GetUserNotificationHistory)).Methods("GET")
}

// RegisterDevice registers a device token for push notifications. Upserts on
// (token, user).
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var device models.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	device.UserID = userID

	if device.Token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	if _, err := expo.NewExponentPushToken(device.Token); err != nil {
		http.Error(w, "Invalid Expo push token format", http.StatusBadRequest)
		return
	}

	var existingDevice models.Device
	result := h.db.Where("token = ? AND user_id = ?", device.Token, device.UserID).First(&existingDevice)

	if result.Error == nil {
		existingDevice.UpdatedAt = time.Now()
		existingDevice.DeviceType = device.DeviceType
		existingDevice.DeviceName = device.DeviceName
		if err := h.db.Save(&existingDevice).Error; err != nil {
			http.Error(w, "Error updating device", http.StatusInternalServerError)
			return
		}
		device = existingDevice
	} else {
		if err := h.db.Create(&device).Error; err != nil {
			http.Error(w, "Error creating device", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Device registered successfully",
		"device":  device,
	})
}

func (h *NotificationHandler) GetUserDevices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var devices []models.Device
	if err := h.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		http.Error(w, "Error retrieving devices", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// SendUserNotification lets an admin push an ad-hoc notification to all of a
// user's devices.
func (h *NotificationHandler) SendUserNotification(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var notificationData struct {
		Title string            `json:"title"`
		Body  string            `json:"body"`
		Data  map[string]string `json:"data,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&notificationData); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if notificationData.Title == "" || notificationData.Body == "" {
		http.Error(w, "Title and body are required", http.StatusBadRequest)
		return
	}

	h.notifier.NotifyUser(uint(userID), notificationData.Title, notificationData.Body, notificationData.Data)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Notification queued",
	})
}

func (h *NotificationHandler) GetUserNotificationHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	limit := 20
	page := 1
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsedLimit, err := strconv.Atoi(limitParam); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		if parsedPage, err := strconv.Atoi(pageParam); err == nil && parsedPage > 0 {
			page = parsedPage
		}
	}
	offset := (page - 1) * limit

	var history []models.NotificationHistory
	var count int64

	if err := h.db.Model(&models.NotificationHistory{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		http.Error(w, "Error counting notifications", http.StatusInternalServerError)
		return
	}

	if err := h.db.Where("user_id = ?", userID).
		Order("sent_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&history).Error; err != nil {
		http.Error(w, "Error retrieving notification history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":   count,
		"page":    page,
		"limit":   limit,
		"history": history,
	})
}

func (h *NotificationHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deviceID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	result := h.db.Delete(&models.Device{}, deviceID)
	if result.Error != nil {
		http.Error(w, "Error deleting device", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Device deleted successfully",
	})
}
