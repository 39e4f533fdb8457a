package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/silvercare/silvercare-server/cmd/models"
)

// Requirements is the snapshot of a booking the scorer ranks trainers
// against.
type Requirements struct {
	ServiceType   string
	Specialty     string
	Address       string
	SessionType   string
	MaxHourlyRate float64
}

// RequirementsFromBooking extracts the matching requirements from a booking.
// Specialty hints live in the customer's free-text notes.
func RequirementsFromBooking(b *models.Booking) Requirements {
	return Requirements{
		ServiceType:   b.ServiceType,
		Specialty:     b.CustomerNotes,
		Address:       b.Address,
		SessionType:   b.SessionType,
		MaxHourlyRate: b.MaxHourlyRate,
	}
}

// Candidate is a scored trainer. Reasons are human-readable and rendered in
// the admin's manual-match view.
type Candidate struct {
	Trainer        models.Trainer `json:"trainer"`
	Score          int            `json:"score"`
	Reasons        []string       `json:"reasons"`
	ActiveBookings int            `json:"active_bookings"`
	IsWithinBudget bool           `json:"is_within_budget"`
}

// RankTrainers scores every trainer against the requirements and returns the
// list in descending score order. Ties order by active workload ascending,
// then trainer id ascending, so the ranking is stable regardless of input
// order. workload maps trainer id to the count of active future bookings.
//
// Pure function: no side effects, callers decide how many candidates to
// notify or display.
func RankTrainers(req Requirements, trainers []models.Trainer, workload map[uint]int) []Candidate {
	candidates := make([]Candidate, 0, len(trainers))
	for _, trainer := range trainers {
		active := workload[trainer.ID]
		score, reasons := scoreTrainer(req, &trainer, active)
		candidates = append(candidates, Candidate{
			Trainer:        trainer,
			Score:          score,
			Reasons:        reasons,
			ActiveBookings: active,
			IsWithinBudget: req.MaxHourlyRate <= 0 || trainer.HourlyRate <= req.MaxHourlyRate,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].ActiveBookings != candidates[j].ActiveBookings {
			return candidates[i].ActiveBookings < candidates[j].ActiveBookings
		}
		return candidates[i].Trainer.ID < candidates[j].Trainer.ID
	})

	return candidates
}

func scoreTrainer(req Requirements, t *models.Trainer, activeBookings int) (int, []string) {
	score := 0
	var reasons []string

	if t.SupportsServiceType(req.ServiceType) {
		score += 30
		reasons = append(reasons, fmt.Sprintf("supports %s sessions", req.ServiceType))
	}

	if matched := matchSpecialties(req.Specialty, t.Specialties); len(matched) > 0 {
		score += 20 * len(matched)
		reasons = append(reasons, "specialty match: "+strings.Join(matched, ", "))
	}

	if area := matchServiceArea(req.Address, t.ServiceAreas); area != "" {
		score += 25
		reasons = append(reasons, "covers service area "+area)
	}

	if t.YearsExperience > 0 {
		bonus := t.YearsExperience * 2
		if bonus > 10 {
			bonus = 10
		}
		score += bonus
		reasons = append(reasons, fmt.Sprintf("%d years of experience", t.YearsExperience))
	}

	if len(t.Certifications) > 0 {
		score += 3 * len(t.Certifications)
		reasons = append(reasons, fmt.Sprintf("%d certifications", len(t.Certifications)))
	}

	if pricePoints := priceScore(t.HourlyRate, req.MaxHourlyRate); pricePoints > 0 {
		score += pricePoints
		reasons = append(reasons, "competitive hourly rate")
	}

	workloadPoints := workloadScore(activeBookings)
	score += workloadPoints
	if workloadPoints == 20 {
		reasons = append(reasons, "no active bookings")
	}

	return score, reasons
}

// matchSpecialties splits the requested specialty text on commas and
// whitespace and returns the keywords found as substrings of any trainer
// specialty.
func matchSpecialties(requested string, specialties []string) []string {
	var matched []string
	for _, keyword := range splitKeywords(requested) {
		for _, specialty := range specialties {
			if strings.Contains(strings.ToLower(specialty), strings.ToLower(keyword)) {
				matched = append(matched, keyword)
				break
			}
		}
	}
	return matched
}

func splitKeywords(text string) []string {
	var keywords []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			keywords = append(keywords, part)
		}
	}
	return keywords
}

// matchServiceArea checks whether the booking address and one of the
// trainer's service areas contain each other; the first address token is
// tried as a fallback for loosely formatted addresses.
func matchServiceArea(address string, areas []string) string {
	if address == "" {
		return ""
	}
	firstToken := ""
	if fields := strings.Fields(address); len(fields) > 0 {
		firstToken = fields[0]
	}
	for _, area := range areas {
		if area == "" {
			continue
		}
		if strings.Contains(address, area) || strings.Contains(area, address) {
			return area
		}
		if firstToken != "" && (strings.Contains(firstToken, area) || strings.Contains(area, firstToken)) {
			return area
		}
	}
	return ""
}

func priceScore(rate, maxRate float64) int {
	if maxRate <= 0 {
		return 0
	}
	ratio := rate / maxRate
	switch {
	case ratio <= 0.8:
		return 15
	case ratio <= 1.0:
		return 10
	case ratio <= 1.2:
		return 5
	default:
		return 0
	}
}

func workloadScore(activeBookings int) int {
	switch {
	case activeBookings == 0:
		return 20
	case activeBookings <= 2:
		return 15
	case activeBookings <= 4:
		return 10
	case activeBookings <= 6:
		return 5
	default:
		return 0
	}
}
