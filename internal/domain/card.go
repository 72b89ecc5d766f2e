package domain

import "time"

// LearningState is the coarse classification of a card's mastery progress.
type LearningState string

const (
	StateNew      LearningState = "new"
	StateLearning LearningState = "learning"
	StateReview   LearningState = "review"
	StateMastered LearningState = "mastered"
)

// Card represents a single reviewable question-answer-context entry together
// with its scheduling fields. The store is the only writer of the scheduling
// fields; the scheduler computes them and hands them back.
type Card struct {
	ID       string
	SetID    string
	Question string
	Answer   string
	Context  string

	State      LearningState
	Interval   int     // days until next review
	Reps       int     // consecutive successful reviews
	EaseFactor float64 // SM-2 multiplier, never below the configured floor
	LeitnerBox int     // alternate algorithm track, starts at 1

	NextReview   time.Time
	LastReviewed time.Time // zero value means never reviewed

	TotalReviews   int
	CorrectReviews int

	// Version increments on every persisted state change and backs the
	// optimistic-concurrency contract of the store.
	Version int64
}

// Due reports whether the card should be presented at the given instant.
func (c Card) Due(now time.Time) bool {
	return !c.NextReview.After(now)
}

// Set is a named collection of cards. Stats are always derived from the
// cards, never stored alongside them.
type Set struct {
	ID        string
	ProjectID string
	Name      string
}

// Project groups sets.
type Project struct {
	ID   string
	Name string
}

// Source is the origin of a set's cards, either a local directory or a git
// repository of markdown files.
type Source struct {
	ID          int64
	ProjectID   string
	Path        string
	Type        string // "local" or "git"
	LastScanned time.Time
}

// ReviewEvent is a single graded answer. Quality corresponds to the SM-2
// self-assessment scale:
// 0: complete blackout
// 1: incorrect, answer remembered on sight
// 2: incorrect, answer felt familiar
// 3: correct with serious effort
// 4: correct after hesitation
// 5: perfect recall
type ReviewEvent struct {
	CardID       string
	Quality      int
	ResponseTime time.Duration
}

// SetStats are derived aggregates for one set.
type SetStats struct {
	TotalCards    int       `json:"total_cards"`
	DueCards      int       `json:"due_cards"`
	LearningCards int       `json:"learning_cards"`
	ReviewCards   int       `json:"review_cards"`
	MasteredCards int       `json:"mastered_cards"`
	RetentionRate float64   `json:"retention_rate"`
	NextReview    time.Time `json:"next_review"`
}

// ProjectStats are derived aggregates across all sets of a project.
type ProjectStats struct {
	TotalSets       int     `json:"total_sets"`
	TotalCards      int     `json:"total_cards"`
	DueToday        int     `json:"due_today"`
	LearningCards   int     `json:"learning_cards"`
	MasteredCards   int     `json:"mastered_cards"`
	AverageAccuracy float64 `json:"average_accuracy"`
}
