package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
	"github.com/silvercare/silvercare-server/cmd/utils"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.handleLogin).Methods("POST")
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/user/verify", h.verifyUser).Methods("POST")
	router.HandleFunc("/refresh", h.handleRefreshToken).Methods("POST")
	router.HandleFunc("/request-password-reset", h.requestPasswordReset).Methods("POST")
	router.HandleFunc("/reset-password", h.resetPassword).Methods("POST")
	router.HandleFunc("/users/{id}", utils.AuthMiddleware(h.GetUser)).Methods("GET")
	router.HandleFunc("/users", utils.RequireRole(models.RoleAdmin, h.GetUsers)).Methods("GET")
	router.HandleFunc("/users/{id}/suspend", utils.RequireRole(models.RoleAdmin, h.SuspendUser)).Methods("POST")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Where("email = ?", loginRequest.Email).First(&user)
	if result.Error != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateJWT(user.ID, user.Role, 7500)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	refreshToken, err := generateJWT(user.ID, user.Role, 60*24*30)
	if err != nil {
		http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
		return
	}

	user.Refresh = refreshToken
	user.RefreshTokenExpiredAt = time.Now().Add(30 * 24 * time.Hour)
	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error saving refresh token", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"message":       "Login successful",
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user_id":       user.ID,
		"role":          user.Role,
	}

	if user.Role == models.RoleTrainer {
		var trainer models.Trainer
		result := h.db.Where("user_id = ?", user.ID).First(&trainer)
		if result.Error == nil {
			response["trainer_id"] = trainer.ID
		} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, "Error fetching trainer profile", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest struct {
		FullName       string   `json:"full_name"`
		Email          string   `json:"email"`
		Password       string   `json:"password"`
		Phone          string   `json:"phone"`
		Role           string   `json:"role"`
		Bio            string   `json:"bio"`
		HourlyRate     float64  `json:"hourly_rate"`
		Specialties    []string `json:"specialties"`
		ServiceAreas   []string `json:"service_areas"`
		Certifications []string `json:"certifications"`
	}
	if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}
	if registerRequest.FullName == "" || registerRequest.Email == "" || registerRequest.Password == "" || registerRequest.Phone == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if registerRequest.Role == "" {
		registerRequest.Role = models.RoleCustomer
	}
	if registerRequest.Role != models.RoleCustomer && registerRequest.Role != models.RoleTrainer {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	var existingUser models.User
	if result := h.db.Where("email = ? OR phone = ?", registerRequest.Email, registerRequest.Phone).First(&existingUser); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		http.Error(w, "Email or phone number is already in use", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	verificationCode := fmt.Sprintf("%06d", rand.Intn(1000000))
	verificationExpiry := time.Now().Add(15 * time.Minute)

	tx := h.db.Begin()

	user := models.User{
		FullName:              registerRequest.FullName,
		Email:                 registerRequest.Email,
		PasswordHash:          string(passwordHash),
		Phone:                 registerRequest.Phone,
		Role:                  registerRequest.Role,
		EmailVerificationCode: verificationCode,
		VerificationExpiry:    verificationExpiry,
	}

	if err := tx.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			tx.Rollback()
			http.Error(w, "Email or phone number is already in use", http.StatusConflict)
			return
		}
		tx.Rollback()
		http.Error(w, "Error registering user", http.StatusInternalServerError)
		return
	}

	var trainerID uint
	if registerRequest.Role == models.RoleTrainer {
		trainer := models.Trainer{
			UserID:         user.ID,
			Bio:            registerRequest.Bio,
			HourlyRate:     registerRequest.HourlyRate,
			Specialties:    registerRequest.Specialties,
			ServiceAreas:   registerRequest.ServiceAreas,
			Certifications: registerRequest.Certifications,
		}

		if err := tx.Create(&trainer).Error; err != nil {
			tx.Rollback()
			http.Error(w, "Error creating trainer profile", http.StatusInternalServerError)
			return
		}
		trainerID = trainer.ID
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := sendVerificationEmail(user.Email, verificationCode); err != nil {
			log.Printf("Error sending verification email: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"message": "User registered successfully. Please check your email for verification code.",
		"user_id": user.ID,
	}
	if trainerID != 0 {
		response["trainer_id"] = trainerID
	}
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) verifyUser(w http.ResponseWriter, r *http.Request) {
	var verifyRequest struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&verifyRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", verifyRequest.Email).First(&user).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if user.EmailVerificationCode != verifyRequest.Code {
		http.Error(w, "Invalid verification code", http.StatusBadRequest)
		return
	}
	if time.Now().After(user.VerificationExpiry) {
		http.Error(w, "Verification code expired", http.StatusBadRequest)
		return
	}

	user.EmailVerified = true
	user.EmailVerificationCode = ""
	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error verifying user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Email verified successfully",
	})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&refreshRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("refresh_token = ?", refreshRequest.RefreshToken).First(&user).Error; err != nil {
		http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}
	if time.Now().After(user.RefreshTokenExpiredAt) {
		http.Error(w, "Refresh token expired", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateJWT(user.ID, user.Role, 7500)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token": accessToken,
	})
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var resetRequest struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", resetRequest.Email).First(&user).Error; err != nil {
		// Do not reveal whether the email exists.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "If the email exists, a reset code has been sent",
		})
		return
	}

	resetCode := fmt.Sprintf("%06d", rand.Intn(1000000))
	token := models.PasswordResetToken{
		UserID:    user.ID,
		Token:     resetCode,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	h.db.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{})
	if err := h.db.Create(&token).Error; err != nil {
		http.Error(w, "Error creating reset token", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := sendPasswordResetEmail(user.Email, resetCode); err != nil {
			log.Printf("Error sending password reset email: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "If the email exists, a reset code has been sent",
	})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var resetRequest struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if resetRequest.NewPassword == "" {
		http.Error(w, "New password is required", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", resetRequest.Email).First(&user).Error; err != nil {
		http.Error(w, "Invalid reset code", http.StatusBadRequest)
		return
	}

	var token models.PasswordResetToken
	if err := h.db.Where("user_id = ? AND token = ?", user.ID, resetRequest.Code).First(&token).Error; err != nil {
		http.Error(w, "Invalid reset code", http.StatusBadRequest)
		return
	}
	if time.Now().After(token.ExpiresAt) {
		http.Error(w, "Reset code expired", http.StatusBadRequest)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(resetRequest.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	user.PasswordHash = string(passwordHash)
	user.Refresh = ""
	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating password", http.StatusInternalServerError)
		return
	}
	h.db.Delete(&token)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Password reset successfully",
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Preload("Trainer").First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 50

	query := h.db.Model(&models.User{})
	if role := r.URL.Query().Get("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	query.Count(&total)

	var users []models.User
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		http.Error(w, "Error retrieving users", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"users":       users,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) SuspendUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	result := h.db.Model(&models.User{}).Where("id = ?", userID).
		Update("status", "suspended")
	if result.Error != nil {
		http.Error(w, "Error suspending user", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User suspended successfully",
	})
}

func generateJWT(userID uint, role string, minutes int) (string, error) {
	claims := utils.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(minutes) * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}

func sendVerificationEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Email Verification Code")
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is: %s. Ignore this email if you did not request a verification code.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}

func sendPasswordResetEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Password Reset Code")
	m.SetBody("text/plain", fmt.Sprintf("Your password reset code is: %s. It expires in 15 minutes.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}
