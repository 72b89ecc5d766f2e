// Package session drives study sessions: it sequences a batch of due cards,
// applies the selected scheduling policy one review at a time, and persists
// each result through the store before moving on. Reviews within one
// session are strictly sequential; concurrent sessions race only through
// the store's per-card version check.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/srslab/revise/internal/domain"
	"github.com/srslab/revise/internal/scheduler"
	"github.com/srslab/revise/internal/store"
)

// Store is the persistence surface the coordinator drives. *store.DB and
// *store.RemoteStore both satisfy it.
type Store interface {
	GetCard(ctx context.Context, cardID string) (domain.Card, error)
	GetDue(ctx context.Context, scope store.Scope, now time.Time, limit int) ([]domain.Card, error)
	ApplyReview(ctx context.Context, c domain.Card, expectedVersion int64) error
}

// ProgressStore checkpoints in-flight sessions so they survive a restart.
// Implementations must treat Clear of an unknown session as a no-op.
type ProgressStore interface {
	SaveProgress(ctx context.Context, id string, payload []byte) error
	LoadProgress(ctx context.Context, id string) ([]byte, error)
	ClearProgress(ctx context.Context, id string) error
}

// State is the coordinator's position in the review loop.
type State string

const (
	StateInitialized State = "initialized"
	StatePresenting  State = "presenting"
	StateAnswered    State = "answered"
	StateRecorded    State = "recorded"
	StateCompleted   State = "completed"
)

// DefaultLimit is the session size used when the caller passes none.
const DefaultLimit = 20

// Counters are the running session totals. A failed persist never counts.
type Counters struct {
	Reviewed  int `json:"reviewed"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

// Result is the outcome of one accepted review.
type Result struct {
	Completed bool
	NextCard  *domain.Card
	Counters  Counters
}

// Coordinator owns one session. All methods are safe for concurrent use;
// they serialize on an internal mutex so reviews apply in cursor order.
type Coordinator struct {
	mu sync.Mutex

	id       string
	scope    store.Scope
	policy   scheduler.Policy
	store    Store
	progress ProgressStore
	now      func() time.Time

	queue    []domain.Card
	cursor   int
	state    State
	counters Counters
}

// ID returns the session handle.
func (c *Coordinator) ID() string { return c.id }

// State returns the current machine state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counters returns a copy of the running totals.
func (c *Coordinator) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// Remaining reports how many cards are left, including the current one.
func (c *Coordinator) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) - c.cursor
}

// Current returns the card under the cursor, or false once the session has
// completed.
func (c *Coordinator) Current() (domain.Card, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCompleted {
		return domain.Card{}, false
	}
	return c.queue[c.cursor], true
}

// Reveal moves the current card from question to answer. It carries no
// store mutation; the grade arrives with SubmitReview. Revealing twice is a
// no-op; revealing a completed session is an error.
func (c *Coordinator) Reveal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatePresenting:
		c.state = StateAnswered
		return nil
	case StateAnswered:
		return nil
	default:
		return fmt.Errorf("cannot reveal in state %s: %w", c.state, domain.ErrInvalidInput)
	}
}

// SubmitReview grades the current card, persists the new scheduling state
// and advances the cursor. A non-empty ev.CardID must match the current
// card, which lets callers detect that the session moved on under them. If
// the persist fails the cursor and counters are untouched and the same card
// stays current, so the caller can retry or abandon.
func (c *Coordinator) SubmitReview(ctx context.Context, ev domain.ReviewEvent) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateAnswered:
	case StateCompleted:
		return Result{}, fmt.Errorf("session %s already completed: %w", c.id, domain.ErrInvalidInput)
	default:
		return Result{}, fmt.Errorf("answer not revealed yet: %w", domain.ErrInvalidInput)
	}

	card := c.queue[c.cursor]
	if ev.CardID != "" && ev.CardID != card.ID {
		return Result{}, fmt.Errorf("review for card %s but %s is current: %w", ev.CardID, card.ID, domain.ErrInvalidInput)
	}
	now := c.now()

	next, err := c.policy.Review(card, ev.Quality, now)
	if err != nil {
		return Result{}, err
	}

	if err := c.store.ApplyReview(ctx, next, card.Version); err != nil {
		return Result{}, fmt.Errorf("record review for card %s: %w", card.ID, err)
	}

	c.state = StateRecorded
	c.counters.Reviewed++
	if ev.Quality >= scheduler.PassingQuality {
		c.counters.Correct++
	} else {
		c.counters.Incorrect++
	}
	slog.Debug("review recorded",
		"session", c.id,
		"card", card.ID,
		"quality", ev.Quality,
		"response_time", ev.ResponseTime,
	)

	c.cursor++
	if c.cursor < len(c.queue) {
		c.state = StatePresenting
		c.checkpoint(ctx)
		nextCard := c.queue[c.cursor]
		return Result{NextCard: &nextCard, Counters: c.counters}, nil
	}

	c.state = StateCompleted
	if c.progress != nil {
		// A leftover checkpoint is harmless, so a failed clear does not
		// fail the review that already persisted.
		_ = c.progress.ClearProgress(ctx, c.id)
	}
	return Result{Completed: true, Counters: c.counters}, nil
}

// snapshot is the checkpoint payload. Card IDs are enough; scheduling state
// is reloaded from the store on resume.
type snapshot struct {
	Scope    store.Scope `json:"scope"`
	Policy   string      `json:"policy"`
	CardIDs  []string    `json:"card_ids"`
	Cursor   int         `json:"cursor"`
	Counters Counters    `json:"counters"`
}

// checkpoint is best-effort: a failed save must not fail the review that
// already persisted.
func (c *Coordinator) checkpoint(ctx context.Context) {
	if c.progress == nil {
		return
	}
	ids := make([]string, len(c.queue))
	for i, card := range c.queue {
		ids[i] = card.ID
	}
	payload, err := json.Marshal(snapshot{
		Scope:    c.scope,
		Policy:   c.policy.Name(),
		CardIDs:  ids,
		Cursor:   c.cursor,
		Counters: c.counters,
	})
	if err != nil {
		return
	}
	_ = c.progress.SaveProgress(ctx, c.id, payload)
}
