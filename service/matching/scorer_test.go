package matching

import (
	"testing"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/silvercare/silvercare-server/cmd/models"
)

func trainerWith(id uint, mutate func(*models.Trainer)) models.Trainer {
	t := models.Trainer{
		Model:              gorm.Model{ID: id},
		UserID:             id + 100,
		HourlyRate:         80000,
		HomeVisitAvailable: true,
		IsVerified:         true,
		IsActive:           true,
	}
	if mutate != nil {
		mutate(&t)
	}
	return t
}

func scoreOf(candidates []Candidate, id uint) (int, bool) {
	for _, c := range candidates {
		if c.Trainer.ID == id {
			return c.Score, true
		}
	}
	return 0, false
}

func TestScoreSignals(t *testing.T) {
	req := Requirements{
		ServiceType:   models.ServiceHomeVisit,
		Specialty:     "균형감각, 근력강화",
		Address:       "서울시 강남구 역삼동",
		SessionType:   models.SessionOneOnOne,
		MaxHourlyRate: 100000,
	}

	cases := []struct {
		name     string
		trainer  models.Trainer
		workload int
		want     int
	}{
		{
			name: "service type only",
			// rate 80000/100000 = 0.8 → +15 price, zero workload → +20
			trainer: trainerWith(1, nil),
			want:    30 + 15 + 20,
		},
		{
			name: "no service type match",
			trainer: trainerWith(2, func(tr *models.Trainer) {
				tr.HomeVisitAvailable = false
				tr.CenterVisitAvailable = true
			}),
			want: 15 + 20,
		},
		{
			name: "two specialty keywords",
			trainer: trainerWith(3, func(tr *models.Trainer) {
				tr.Specialties = pq.StringArray{"시니어 균형감각 트레이닝", "근력강화 프로그램"}
			}),
			want: 30 + 40 + 15 + 20,
		},
		{
			name: "service area match",
			trainer: trainerWith(4, func(tr *models.Trainer) {
				tr.ServiceAreas = pq.StringArray{"강남구"}
			}),
			want: 30 + 25 + 15 + 20,
		},
		{
			name: "experience capped at ten",
			trainer: trainerWith(5, func(tr *models.Trainer) {
				tr.YearsExperience = 12
			}),
			want: 30 + 10 + 15 + 20,
		},
		{
			name: "certifications uncapped",
			trainer: trainerWith(6, func(tr *models.Trainer) {
				tr.Certifications = pq.StringArray{"a", "b", "c", "d", "e"}
			}),
			want: 30 + 15 + 15 + 20,
		},
		{
			name: "over budget rate scores zero price points",
			trainer: trainerWith(7, func(tr *models.Trainer) {
				tr.HourlyRate = 130000
			}),
			want: 30 + 20,
		},
		{
			name:     "busy trainer loses workload points",
			trainer:  trainerWith(8, nil),
			workload: 7,
			want:     30 + 15,
		},
		{
			name:     "moderate workload tier",
			trainer:  trainerWith(9, nil),
			workload: 3,
			want:     30 + 15 + 10,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := scoreTrainer(req, &tc.trainer, tc.workload)
			if got != tc.want {
				t.Fatalf("score = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRankSpecialtyMatchOutranksNonMatch(t *testing.T) {
	// Two trainers identical except for the specialty match; the matching one
	// must rank first even with a slightly worse rate.
	req := Requirements{
		ServiceType:   models.ServiceHomeVisit,
		Specialty:     "균형감각",
		SessionType:   models.SessionTwoOnOne,
		MaxHourlyRate: 100000,
	}
	t1 := trainerWith(1, func(tr *models.Trainer) {
		tr.HourlyRate = 90000
		tr.Specialties = pq.StringArray{"균형감각 강화"}
	})
	t2 := trainerWith(2, func(tr *models.Trainer) {
		tr.HourlyRate = 70000
	})

	ranked := RankTrainers(req, []models.Trainer{t2, t1}, map[uint]int{1: 0, 2: 1})
	if ranked[0].Trainer.ID != 1 {
		t.Fatalf("expected specialty-matching trainer first, got trainer %d", ranked[0].Trainer.ID)
	}
}

func TestScoringMonotonicity(t *testing.T) {
	req := Requirements{
		ServiceType:   models.ServiceHomeVisit,
		MaxHourlyRate: 100000,
	}
	base := trainerWith(1, nil)
	baseScore, _ := scoreTrainer(req, &base, 2)

	moreExperience := trainerWith(1, func(tr *models.Trainer) { tr.YearsExperience = 3 })
	if got, _ := scoreTrainer(req, &moreExperience, 2); got < baseScore {
		t.Fatalf("more experience lowered score: %d < %d", got, baseScore)
	}

	moreCerts := trainerWith(1, func(tr *models.Trainer) { tr.Certifications = pq.StringArray{"cert"} })
	if got, _ := scoreTrainer(req, &moreCerts, 2); got < baseScore {
		t.Fatalf("more certifications lowered score: %d < %d", got, baseScore)
	}

	if got, _ := scoreTrainer(req, &base, 0); got < baseScore {
		t.Fatalf("lighter workload lowered score: %d < %d", got, baseScore)
	}
}

func TestBudgetPartition(t *testing.T) {
	req := Requirements{ServiceType: models.ServiceHomeVisit, MaxHourlyRate: 100000}
	trainers := []models.Trainer{
		trainerWith(1, func(tr *models.Trainer) { tr.HourlyRate = 100000 }),
		trainerWith(2, func(tr *models.Trainer) { tr.HourlyRate = 100001 }),
		trainerWith(3, func(tr *models.Trainer) { tr.HourlyRate = 50000 }),
	}

	for _, c := range RankTrainers(req, trainers, nil) {
		within := c.Trainer.HourlyRate <= req.MaxHourlyRate
		if c.IsWithinBudget != within {
			t.Fatalf("trainer %d: IsWithinBudget = %v, want %v", c.Trainer.ID, c.IsWithinBudget, within)
		}
	}
}

func TestNoBudgetMeansEveryoneWithinBudget(t *testing.T) {
	req := Requirements{ServiceType: models.ServiceHomeVisit}
	trainers := []models.Trainer{
		trainerWith(1, func(tr *models.Trainer) { tr.HourlyRate = 500000 }),
	}
	ranked := RankTrainers(req, trainers, nil)
	if !ranked[0].IsWithinBudget {
		t.Fatalf("expected trainer within budget when no reference rate is set")
	}
}

func TestTieBreakDeterministic(t *testing.T) {
	req := Requirements{ServiceType: models.ServiceHomeVisit, MaxHourlyRate: 100000}
	// Same score, same workload: id ascending must win regardless of input
	// order.
	a := trainerWith(3, nil)
	b := trainerWith(1, nil)
	c := trainerWith(2, nil)

	first := RankTrainers(req, []models.Trainer{a, b, c}, nil)
	for i := 0; i < 20; i++ {
		next := RankTrainers(req, []models.Trainer{c, a, b}, nil)
		for j := range first {
			if next[j].Trainer.ID != first[j].Trainer.ID {
				t.Fatalf("non-deterministic order at position %d: got %d want %d",
					j, next[j].Trainer.ID, first[j].Trainer.ID)
			}
		}
	}
	if first[0].Trainer.ID != 1 || first[1].Trainer.ID != 2 || first[2].Trainer.ID != 3 {
		t.Fatalf("expected id-ascending tie-break, got %d,%d,%d",
			first[0].Trainer.ID, first[1].Trainer.ID, first[2].Trainer.ID)
	}

	// Workloads 1 and 2 land in the same scoring tier, so the scores tie and
	// the lighter workload must come first.
	lighter := trainerWith(6, nil)
	busier := trainerWith(5, nil)
	ranked := RankTrainers(req, []models.Trainer{busier, lighter}, map[uint]int{5: 2, 6: 1})
	if ranked[0].Trainer.ID != 6 {
		t.Fatalf("expected lighter-workload trainer first on tie, got %d", ranked[0].Trainer.ID)
	}
}
