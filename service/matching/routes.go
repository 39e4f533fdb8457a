package matching

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
)

type MatchingHandler struct {
	engine *Engine
}

func NewMatchingHandler(engine *Engine) *MatchingHandler {
	return &MatchingHandler{engine: engine}
}

func (h *MatchingHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/{id}/accept", utils.AuthMiddleware(h.AcceptBooking)).Methods("POST")
	router.HandleFunc("/bookings/{id}/decline", utils.AuthMiddleware(h.DeclineBooking)).Methods("POST")

	router.HandleFunc("/admin/matching/bookings", utils.RequireRole(models.RoleAdmin, h.GetAwaitingAdmin)).Methods("GET")
	router.HandleFunc("/admin/matching/bookings/{id}/candidates", utils.RequireRole(models.RoleAdmin, h.GetCandidates)).Methods("GET")
	router.HandleFunc("/admin/matching/bookings/{id}/assign", utils.RequireRole(models.RoleAdmin, h.AssignTrainer)).Methods("POST")
	router.HandleFunc("/admin/matching/stats", utils.RequireRole(models.RoleAdmin, h.GetStats)).Methods("GET")
}

// AcceptBooking lets a notified trainer try to claim a recommended booking.
// First qualifying accept wins; everyone else gets a 409.
func (h *MatchingHandler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	trainer, err := h.trainerFromRequest(r)
	if err != nil {
		http.Error(w, "Only registered trainers can respond to booking requests", http.StatusForbidden)
		return
	}

	booking, err := h.engine.AcceptBooking(bookingID, trainer.ID)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Booking accepted",
		"booking": booking,
	})
}

// DeclineBooking records a declined response without touching the booking.
func (h *MatchingHandler) DeclineBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	trainer, err := h.trainerFromRequest(r)
	if err != nil {
		http.Error(w, "Only registered trainers can respond to booking requests", http.StatusForbidden)
		return
	}

	var declineRequest struct {
		Reason string `json:"reason"`
		Note   string `json:"note"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&declineRequest)
	}

	if err := h.engine.DeclineBooking(bookingID, trainer.ID, declineRequest.Reason, declineRequest.Note); err != nil {
		writeMatchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Booking declined",
	})
}

func (h *MatchingHandler) GetAwaitingAdmin(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.engine.AwaitingAdmin()
	if err != nil {
		http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bookings": bookings,
		"total":    len(bookings),
	})
}

func (h *MatchingHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	includeOverBudget := r.URL.Query().Get("include_over_budget") == "true"

	candidates, err := h.engine.CandidatesForBooking(bookingID, includeOverBudget)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"candidates": candidates,
		"total":      len(candidates),
	})
}

func (h *MatchingHandler) AssignTrainer(w http.ResponseWriter, r *http.Request) {
	bookingID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	adminID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var assignRequest struct {
		TrainerID uint `json:"trainer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&assignRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if assignRequest.TrainerID == 0 {
		http.Error(w, "trainer_id is required", http.StatusBadRequest)
		return
	}

	booking, err := h.engine.AssignTrainer(bookingID, assignRequest.TrainerID, adminID)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Trainer assigned",
		"booking": booking,
	})
}

func (h *MatchingHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats()
	if err != nil {
		http.Error(w, "Error retrieving matching stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *MatchingHandler) trainerFromRequest(r *http.Request) (*models.Trainer, error) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		return nil, err
	}
	return h.engine.TrainerForUser(userID)
}

func parseID(r *http.Request) (uint, error) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	return uint(id), err
}

// writeMatchError maps the engine's error taxonomy onto HTTP statuses so
// racing trainers see a clear "already claimed" rather than a generic error.
func writeMatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, ErrTrainerNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotRecommended), errors.Is(err, ErrAlreadyNotified):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotOffered):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrAlreadyAssigned):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Internal error: "+err.Error(), http.StatusInternalServerError)
	}
}
