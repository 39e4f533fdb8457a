package matching

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/silvercare/silvercare-server/cmd/models"
)

// Watcher periodically sweeps for recommended bookings whose accept window
// elapsed without a winner and flips them to admin fallback. The core itself
// runs no timers; this is the external scheduled collaborator.
type Watcher struct {
	engine   *Engine
	interval time.Duration
	alertTo  string
	stopChan chan struct{}
	running  bool
}

func NewWatcher(engine *Engine, cfg Config) *Watcher {
	return &Watcher{
		engine:   engine,
		interval: cfg.WatchInterval,
		alertTo:  cfg.AdminAlertEmail,
		stopChan: make(chan struct{}),
	}
}

func (w *Watcher) Start() {
	if w.running {
		log.Println("Match watcher is already running")
		return
	}
	w.running = true
	log.Printf("Starting match watcher (interval: %v)", w.interval)

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopChan:
				log.Println("Match watcher stopped")
				return
			case <-ticker.C:
				w.sweep()
			}
		}
	}()
}

func (w *Watcher) Stop() {
	if !w.running {
		return
	}
	w.running = false
	close(w.stopChan)
}

func (w *Watcher) sweep() {
	flipped, err := w.engine.SweepOverdue(time.Now())
	if err != nil {
		log.Printf("Match watcher sweep error: %v", err)
	}
	if len(flipped) == 0 {
		return
	}
	log.Printf("Match watcher: %d bookings fell back to admin matching", len(flipped))

	if w.alertTo == "" {
		return
	}
	go func() {
		if err := sendFallbackAlert(w.alertTo, flipped); err != nil {
			log.Printf("Error sending fallback alert email: %v", err)
		}
	}()
}

// sendFallbackAlert emails the admin team a summary of bookings needing
// manual matching.
func sendFallbackAlert(to string, bookings []models.Booking) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	body := fmt.Sprintf("%d booking(s) were not accepted by any trainer and need manual matching:\n\n", len(bookings))
	for _, booking := range bookings {
		body += fmt.Sprintf("- Booking %s (%s, %s) on %s\n",
			booking.Reference, booking.ServiceType, booking.SessionType,
			booking.BookingDate.Format("2006-01-02"))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Bookings awaiting manual matching")
	m.SetBody("text/plain", body)

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}
