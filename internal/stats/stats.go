// Package stats derives read-only aggregates from card snapshots. Nothing
// here writes; a result reflects one snapshot query per set, so concurrent
// reviews can make a result stale but never inconsistent.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/srslab/revise/internal/domain"
)

// Store is the read surface the aggregator folds over.
type Store interface {
	GetSet(ctx context.Context, setID string) (domain.Set, error)
	GetProject(ctx context.Context, projectID string) (domain.Project, error)
	ListCardsBySet(ctx context.Context, setID string) ([]domain.Card, error)
	ListSetsByProject(ctx context.Context, projectID string) ([]domain.Set, error)
}

// Aggregator computes per-set and per-project statistics.
type Aggregator struct {
	store Store

	// Now is the clock used for due-ness; overridable in tests.
	Now func() time.Time
}

// New builds an aggregator over the given store.
func New(store Store) *Aggregator {
	return &Aggregator{store: store, Now: time.Now}
}

// SetStats folds over one set's cards. An empty set is valid and yields all
// zeroes; a missing set is domain.ErrNotFound.
func (a *Aggregator) SetStats(ctx context.Context, setID string) (domain.SetStats, error) {
	if _, err := a.store.GetSet(ctx, setID); err != nil {
		return domain.SetStats{}, fmt.Errorf("set stats: %w", err)
	}
	cards, err := a.store.ListCardsBySet(ctx, setID)
	if err != nil {
		return domain.SetStats{}, fmt.Errorf("set stats: %w", err)
	}
	return foldSet(cards, a.Now()), nil
}

func foldSet(cards []domain.Card, now time.Time) domain.SetStats {
	var s domain.SetStats
	s.TotalCards = len(cards)
	for _, c := range cards {
		if c.Due(now) {
			s.DueCards++
		}
		switch c.State {
		case domain.StateLearning:
			s.LearningCards++
		case domain.StateReview:
			s.ReviewCards++
		case domain.StateMastered:
			s.MasteredCards++
		}
		if s.NextReview.IsZero() || c.NextReview.Before(s.NextReview) {
			s.NextReview = c.NextReview
		}
	}
	if s.TotalCards > 0 {
		s.RetentionRate = float64(s.MasteredCards) / float64(s.TotalCards)
	}
	return s
}

// ProjectStats folds over every set in the project. Sets that have never
// been reviewed are excluded from the accuracy mean rather than counted as
// zero.
func (a *Aggregator) ProjectStats(ctx context.Context, projectID string) (domain.ProjectStats, error) {
	if _, err := a.store.GetProject(ctx, projectID); err != nil {
		return domain.ProjectStats{}, fmt.Errorf("project stats: %w", err)
	}
	sets, err := a.store.ListSetsByProject(ctx, projectID)
	if err != nil {
		return domain.ProjectStats{}, fmt.Errorf("project stats: %w", err)
	}

	now := a.Now()
	var p domain.ProjectStats
	p.TotalSets = len(sets)

	var accuracySum float64
	var reviewedSets int
	for _, set := range sets {
		cards, err := a.store.ListCardsBySet(ctx, set.ID)
		if err != nil {
			return domain.ProjectStats{}, fmt.Errorf("project stats for set %s: %w", set.ID, err)
		}

		var total, correct int
		for _, c := range cards {
			p.TotalCards++
			if c.Due(now) {
				p.DueToday++
			}
			switch c.State {
			case domain.StateLearning:
				p.LearningCards++
			case domain.StateMastered:
				p.MasteredCards++
			}
			total += c.TotalReviews
			correct += c.CorrectReviews
		}
		if total > 0 {
			accuracySum += float64(correct) / float64(total)
			reviewedSets++
		}
	}
	if reviewedSets > 0 {
		p.AverageAccuracy = accuracySum / float64(reviewedSets)
	}
	return p, nil
}
