// Package scheduler implements the spaced-repetition policies. Policies are
// pure: they read nothing but their inputs and never touch the store, so the
// same (card, quality, now) triple always yields the same next state.
package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/srslab/revise/internal/domain"
)

// Quality bounds of the SM-2 self-assessment scale.
const (
	MinQuality = 0
	MaxQuality = 5

	// PassingQuality is the lowest quality counted as a successful recall.
	PassingQuality = 3
)

// Params holds the tunable constants shared by the policies. The defaults
// follow the standard SM-2 publication; deployments may override them
// through configuration.
type Params struct {
	MinEase             float64 // floor for the SM-2 ease factor
	MasteryReps         int     // consecutive successes before a card can be mastered
	MasteryIntervalDays int     // minimum interval before a card can be mastered
	MaxIntervalDays     int     // hard cap on any computed interval
	LeitnerMaxBox       int     // highest Leitner box
}

// DefaultParams provides the standard SM-2 constants and a seven-box
// Leitner ladder.
func DefaultParams() Params {
	return Params{
		MinEase:             1.3,
		MasteryReps:         5,
		MasteryIntervalDays: 21,
		MaxIntervalDays:     365,
		LeitnerMaxBox:       7,
	}
}

// Policy maps a card state and a quality rating to the card's next state.
type Policy interface {
	// Name identifies the policy for configuration and session selection.
	Name() string

	// Review returns a copy of the card with its scheduling fields advanced.
	// Quality outside [MinQuality, MaxQuality] is rejected with
	// domain.ErrInvalidInput; the card is returned unchanged in that case.
	Review(card domain.Card, quality int, now time.Time) (domain.Card, error)
}

// PolicyFor resolves a policy by name.
func PolicyFor(name string, params Params) (Policy, error) {
	switch name {
	case "", "sm2":
		return SM2{Params: params}, nil
	case "leitner":
		return Leitner{Params: params}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q: %w", name, domain.ErrInvalidInput)
	}
}

func checkQuality(quality int) error {
	if quality < MinQuality || quality > MaxQuality {
		return fmt.Errorf("quality %d outside %d..%d: %w", quality, MinQuality, MaxQuality, domain.ErrInvalidInput)
	}
	return nil
}

// recordOutcome updates the fields every policy maintains identically.
func recordOutcome(card *domain.Card, quality int, now time.Time) {
	card.TotalReviews++
	if quality >= PassingQuality {
		card.CorrectReviews++
	}
	card.LastReviewed = now
	card.NextReview = now.AddDate(0, 0, card.Interval)
}

// SM2 is the primary policy: ease-factor driven interval growth with the
// 1, 6, round(I*EF) ladder.
type SM2 struct {
	Params Params
}

func (SM2) Name() string { return "sm2" }

// Review applies one SM-2 step.
func (p SM2) Review(card domain.Card, quality int, now time.Time) (domain.Card, error) {
	if err := checkQuality(quality); err != nil {
		return card, err
	}

	if card.EaseFactor == 0 {
		card.EaseFactor = 2.5
	}

	if quality < PassingQuality {
		card.Reps = 0
		card.Interval = 1
		card.State = domain.StateLearning
	} else {
		card.Reps++
		switch card.Reps {
		case 1:
			card.Interval = 1
		case 2:
			card.Interval = 6
		default:
			card.Interval = int(math.Round(float64(card.Interval) * card.EaseFactor))
		}
		if card.Interval > p.Params.MaxIntervalDays {
			card.Interval = p.Params.MaxIntervalDays
		}

		q := float64(quality)
		ease := card.EaseFactor + (0.1 - (5-q)*(0.08+(5-q)*0.02))
		card.EaseFactor = math.Max(p.Params.MinEase, ease)

		if card.Reps >= p.Params.MasteryReps && card.Interval >= p.Params.MasteryIntervalDays {
			card.State = domain.StateMastered
		} else {
			card.State = domain.StateReview
		}
	}

	recordOutcome(&card, quality, now)
	return card, nil
}

// Leitner is the alternate policy: discrete boxes with fixed, doubling
// intervals. Success promotes a card one box, failure sends it back to box 1.
type Leitner struct {
	Params Params
}

func (Leitner) Name() string { return "leitner" }

// BoxInterval returns the review interval in days for a box: box 1 is daily
// and each box doubles the previous one.
func (p Leitner) BoxInterval(box int) int {
	if box < 1 {
		box = 1
	}
	if box > p.Params.LeitnerMaxBox {
		box = p.Params.LeitnerMaxBox
	}
	interval := 1 << (box - 1)
	if interval > p.Params.MaxIntervalDays {
		interval = p.Params.MaxIntervalDays
	}
	return interval
}

// Review applies one Leitner step.
func (p Leitner) Review(card domain.Card, quality int, now time.Time) (domain.Card, error) {
	if err := checkQuality(quality); err != nil {
		return card, err
	}

	if card.LeitnerBox < 1 {
		card.LeitnerBox = 1
	}

	if quality < PassingQuality {
		card.LeitnerBox = 1
		card.Reps = 0
		card.State = domain.StateLearning
	} else {
		if card.LeitnerBox < p.Params.LeitnerMaxBox {
			card.LeitnerBox++
		}
		card.Reps++
		if card.LeitnerBox == p.Params.LeitnerMaxBox {
			card.State = domain.StateMastered
		} else {
			card.State = domain.StateReview
		}
	}
	card.Interval = p.BoxInterval(card.LeitnerBox)

	recordOutcome(&card, quality, now)
	return card, nil
}
