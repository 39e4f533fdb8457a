package matching

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the engine tunables, read from the environment.
type Config struct {
	// AcceptWindow is how long notified trainers have to claim a booking
	// before it falls back to manual admin matching.
	AcceptWindow time.Duration `envconfig:"MATCH_ACCEPT_WINDOW" default:"30m"`

	// MaxCandidates caps the notify-set size.
	MaxCandidates int `envconfig:"MATCH_MAX_CANDIDATES" default:"5"`

	// WatchInterval is how often the deadline watcher sweeps for overdue
	// bookings.
	WatchInterval time.Duration `envconfig:"MATCH_WATCH_INTERVAL" default:"1m"`

	// AllowAcceptAfterDecline keeps a trainer who declined eligible to accept
	// later. A decline is advisory when this is on.
	AllowAcceptAfterDecline bool `envconfig:"MATCH_ALLOW_ACCEPT_AFTER_DECLINE" default:"true"`

	// AdminAlertEmail, when set, receives an email whenever a booking falls
	// back to manual matching.
	AdminAlertEmail string `envconfig:"MATCH_ADMIN_ALERT_EMAIL"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
