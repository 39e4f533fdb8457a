package booking

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
	"github.com/silvercare/silvercare-server/service/matching"
)

type BookingHandler struct {
	db     *gorm.DB
	engine *matching.Engine
}

func NewBookingHandler(db *gorm.DB, engine *matching.Engine) *BookingHandler {
	return &BookingHandler{db: db, engine: engine}
}

func (h *BookingHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings", utils.AuthMiddleware(h.CreateBooking)).Methods("POST")
	router.HandleFunc("/bookings", utils.RequireRole(models.RoleAdmin, h.GetAllBookings)).Methods("GET")
	router.HandleFunc("/bookings/{id}", utils.AuthMiddleware(h.GetBooking)).Methods("GET")
	router.HandleFunc("/bookings/customer/{customerId}", utils.AuthMiddleware(h.GetCustomerBookings)).Methods("GET")
	router.HandleFunc("/bookings/trainer/{trainerId}", utils.AuthMiddleware(h.GetTrainerBookings)).Methods("GET")
	router.HandleFunc("/bookings/{id}/cancel", utils.RequireRole(models.RoleAdmin, h.CancelBooking)).Methods("PATCH")

	router.HandleFunc("/bookings/webhook", h.HandlePaymentWebhook).Methods("POST")
}

// CreateBooking creates a direct booking against a chosen trainer, or a
// recommended booking with no trainer that will be resolved by auto-matching
// once payment completes.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	customerID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var bookingRequest struct {
		BookingType     string    `json:"booking_type"`
		TrainerID       uint      `json:"trainer_id"`
		ServiceType     string    `json:"service_type"`
		SessionType     string    `json:"session_type"`
		BookingDate     time.Time `json:"booking_date"`
		StartTime       time.Time `json:"start_time"`
		DurationMinutes int       `json:"duration_minutes"`
		Address         string    `json:"address"`
		CustomerNotes   string    `json:"customer_notes"`
		MaxHourlyRate   float64   `json:"max_hourly_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&bookingRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if bookingRequest.ServiceType == "" || bookingRequest.BookingDate.IsZero() {
		http.Error(w, "service_type and booking_date are required", http.StatusBadRequest)
		return
	}
	if bookingRequest.BookingType == "" {
		bookingRequest.BookingType = models.BookingDirect
	}
	if bookingRequest.SessionType == "" {
		bookingRequest.SessionType = models.SessionOneOnOne
	}
	if bookingRequest.DurationMinutes == 0 {
		bookingRequest.DurationMinutes = 60
	}

	booking := models.Booking{
		Reference:       fmt.Sprintf("BK-%s", uuid.NewString()),
		CustomerID:      customerID,
		BookingType:     bookingRequest.BookingType,
		ServiceType:     bookingRequest.ServiceType,
		SessionType:     bookingRequest.SessionType,
		BookingDate:     bookingRequest.BookingDate,
		StartTime:       bookingRequest.StartTime,
		DurationMinutes: bookingRequest.DurationMinutes,
		Address:         bookingRequest.Address,
		CustomerNotes:   bookingRequest.CustomerNotes,
		MaxHourlyRate:   bookingRequest.MaxHourlyRate,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		MatchingStatus:  models.MatchingPending,
	}

	switch bookingRequest.BookingType {
	case models.BookingDirect:
		if bookingRequest.TrainerID == 0 {
			http.Error(w, "trainer_id is required for direct bookings", http.StatusBadRequest)
			return
		}
		var trainer models.Trainer
		if err := h.db.First(&trainer, bookingRequest.TrainerID).Error; err != nil {
			http.Error(w, "Trainer not found", http.StatusNotFound)
			return
		}
		trainerID := trainer.ID
		booking.TrainerID = &trainerID
		booking.PricePerPerson = trainer.HourlyRate
		booking.TotalPrice = trainer.HourlyRate * float64(booking.SessionMultiplier())
		// A customer-chosen trainer is matched by definition.
		booking.MatchingStatus = models.MatchingMatched
	case models.BookingRecommended:
		// Trainer stays empty until the auto-matching race resolves.
	default:
		http.Error(w, "Invalid booking type", http.StatusBadRequest)
		return
	}

	if err := h.db.Create(&booking).Error; err != nil {
		http.Error(w, "Error creating booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) GetAllBookings(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Booking{}).Preload("Customer").Preload("Trainer")

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if bookingType := r.URL.Query().Get("booking_type"); bookingType != "" {
		query = query.Where("booking_type = ?", bookingType)
	}
	if matchingStatus := r.URL.Query().Get("matching_status"); matchingStatus != "" {
		query = query.Where("matching_status = ?", matchingStatus)
	}
	if date := r.URL.Query().Get("date"); date != "" {
		query = query.Where("booking_date = ?", date)
	}

	var total int64
	query.Count(&total)

	var bookings []models.Booking
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("booking_date DESC, start_time DESC").Find(&bookings).Error; err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bookings":    bookings,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	var booking models.Booking
	if err := h.db.Preload("Customer").Preload("Trainer").First(&booking, bookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(booking)
}

func (h *BookingHandler) GetCustomerBookings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	customerID, err := strconv.ParseUint(vars["customerId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	h.listBookings(w, r, "customer_id = ?", customerID, "Trainer")
}

func (h *BookingHandler) GetTrainerBookings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trainerID, err := strconv.ParseUint(vars["trainerId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid trainer ID", http.StatusBadRequest)
		return
	}
	h.listBookings(w, r, "trainer_id = ?", trainerID, "Customer")
}

func (h *BookingHandler) listBookings(w http.ResponseWriter, r *http.Request, condition string, id uint64, preload string) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Booking{}).Where(condition, id).Preload(preload)

	var total int64
	query.Count(&total)

	var bookings []models.Booking
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("booking_date DESC, start_time DESC").Find(&bookings).Error; err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bookings":    bookings,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// CancelBooking is the admin cancellation path. Cancellation is independent
// of matching: an unmatched recommended booking additionally has its
// matching marked expired so it leaves the manual-matching queue.
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, bookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}
	if booking.Status == models.StatusCancelled {
		http.Error(w, "Booking already cancelled", http.StatusConflict)
		return
	}

	updates := map[string]interface{}{
		"status": models.StatusCancelled,
	}
	if booking.TrainerID == nil && booking.MatchingStatus == models.MatchingPending {
		updates["matching_status"] = models.MatchingExpired
	}

	if err := h.db.Model(&booking).Updates(updates).Error; err != nil {
		http.Error(w, "Error cancelling booking", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Booking cancelled successfully",
	})
}

// HandlePaymentWebhook processes payment-gateway callbacks. On a successful
// charge it marks the booking paid, records the payment, and for recommended
// bookings kicks off the candidate notify pass.
func (h *BookingHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Payment-Signature")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	mac := hmac.New(sha512.New, []byte(os.Getenv("PAYMENT_WEBHOOK_SECRET")))
	mac.Write(body)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expectedMAC)) {
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	var webhookPayload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string  `json:"reference"`
			Status    string  `json:"status"`
			Amount    float64 `json:"amount"`
			Method    string  `json:"method"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &webhookPayload); err != nil {
		http.Error(w, "Error parsing webhook payload", http.StatusBadRequest)
		return
	}

	if webhookPayload.Event != "payment.success" {
		w.WriteHeader(http.StatusOK)
		return
	}

	tx := h.db.Begin()

	var booking models.Booking
	if err := tx.Where("reference = ?", webhookPayload.Data.Reference).First(&booking).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	if booking.PaymentStatus == models.PaymentPaid {
		// Gateways redeliver; the first delivery already did the work.
		tx.Rollback()
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := tx.Model(&booking).Update("payment_status", models.PaymentPaid).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error updating booking", http.StatusInternalServerError)
		return
	}

	payment := models.Payment{
		BookingID: booking.ID,
		UserID:    booking.CustomerID,
		Amount:    webhookPayload.Data.Amount,
		Method:    webhookPayload.Data.Method,
		Reference: webhookPayload.Data.Reference,
		Status:    models.PaymentPaid,
	}
	if err := tx.Create(&payment).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating payment record", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing webhook processing", http.StatusInternalServerError)
		return
	}

	if booking.BookingType == models.BookingRecommended {
		if _, err := h.engine.NotifyCandidates(booking.ID); err != nil &&
			!errors.Is(err, matching.ErrAlreadyNotified) {
			// The booking is paid either way; admins can still match manually.
			log.Printf("Error starting auto-matching for booking %d: %v", booking.ID, err)
		}
	}

	w.WriteHeader(http.StatusOK)
}
