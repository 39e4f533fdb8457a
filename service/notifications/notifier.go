package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
)

// PushNotifier delivers push notifications to all registered devices of a
// user and records the outcome in the notification history. It satisfies the
// matching engine's Notifier interface.
type PushNotifier struct {
	db         *gorm.DB
	expoClient *expo.PushClient
}

func NewPushNotifier(db *gorm.DB) *PushNotifier {
	return &PushNotifier{
		db:         db,
		expoClient: expo.NewPushClient(nil),
	}
}

// NotifyUser is fire-and-forget: delivery runs in the background and callers
// never block on or fail from it.
func (n *PushNotifier) NotifyUser(userID uint, title, body string, data map[string]string) {
	go func() {
		if err := n.send(userID, title, body, data); err != nil {
			log.Printf("Error sending notification to user %d: %v", userID, err)
		}
	}()
}

func (n *PushNotifier) send(userID uint, title, body string, data map[string]string) error {
	var devices []models.Device
	if err := n.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		return fmt.Errorf("retrieving devices: %w", err)
	}

	status := "sent"
	var sendErr error
	if len(devices) > 0 {
		tokens := make([]string, 0, len(devices))
		for _, device := range devices {
			tokens = append(tokens, device.Token)
		}
		if ok, err := n.push(tokens, title, body, data); !ok || err != nil {
			status = "failed"
			sendErr = err
		}
	} else {
		status = "failed"
	}

	dataJSON, _ := json.Marshal(data)
	history := models.NotificationHistory{
		UserID: userID,
		Title:  title,
		Body:   body,
		Data:   string(dataJSON),
		Status: status,
		SentAt: time.Now(),
	}
	if err := n.db.Create(&history).Error; err != nil {
		log.Printf("Error creating notification history: %v", err)
	}

	return sendErr
}

func (n *PushNotifier) push(tokenStrings []string, title, body string, data map[string]string) (bool, error) {
	var validTokens []expo.ExponentPushToken
	var invalidTokens []string

	for _, tokenString := range tokenStrings {
		pushToken, err := expo.NewExponentPushToken(tokenString)
		if err != nil {
			log.Printf("Invalid push token format %s: %v", tokenString, err)
			invalidTokens = append(invalidTokens, tokenString)
			continue
		}
		validTokens = append(validTokens, pushToken)
	}

	if len(validTokens) == 0 {
		return false, fmt.Errorf("no valid push tokens found")
	}

	pushMessage := &expo.PushMessage{
		To:       validTokens,
		Body:     body,
		Title:    title,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     data,
	}

	response, err := n.expoClient.Publish(pushMessage)
	if err != nil {
		return false, fmt.Errorf("failed to publish notification: %v", err)
	}

	if validationErr := response.ValidateResponse(); validationErr != nil {
		log.Printf("Push notification validation error: %v", validationErr)
		n.cleanupInvalidTokens(invalidTokens)
		return false, fmt.Errorf("notification validation failed: %v", validationErr)
	}

	if len(invalidTokens) > 0 {
		n.cleanupInvalidTokens(invalidTokens)
	}

	return true, nil
}

func (n *PushNotifier) cleanupInvalidTokens(tokens []string) {
	for _, token := range tokens {
		if err := n.db.Where("token = ?", token).Delete(&models.Device{}).Error; err != nil {
			log.Printf("Error cleaning up invalid token %s: %v", token, err)
		} else {
			log.Printf("Cleaned up invalid token: %s", token)
		}
	}
}
