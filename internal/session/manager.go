package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/srslab/revise/internal/domain"
	"github.com/srslab/revise/internal/scheduler"
	"github.com/srslab/revise/internal/store"
)

// Manager creates sessions and keeps the live ones addressable by handle.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Coordinator

	store    Store
	progress ProgressStore
	params   scheduler.Params

	// Limit is the session size used when the caller passes none.
	Limit int
	// Policy is the policy used when the caller names none.
	Policy string
	// Now is the clock injected into every session; overridable in tests.
	Now func() time.Time
}

// NewManager wires a manager over the given store. progress may be nil to
// disable checkpointing.
func NewManager(st Store, progress ProgressStore, params scheduler.Params) *Manager {
	return &Manager{
		sessions: make(map[string]*Coordinator),
		store:    st,
		progress: progress,
		params:   params,
		Limit:    DefaultLimit,
		Now:      time.Now,
	}
}

// Start selects up to limit due cards in scope and opens a session over
// them. limit <= 0 falls back to DefaultLimit. An empty due set yields a
// session that is already completed, not an error.
func (m *Manager) Start(ctx context.Context, scope store.Scope, limit int, policyName string) (*Coordinator, error) {
	if policyName == "" {
		policyName = m.Policy
	}
	policy, err := scheduler.PolicyFor(policyName, m.params)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.Limit
	}

	due, err := m.store.GetDue(ctx, scope, m.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("load due cards: %w", err)
	}

	c := &Coordinator{
		id:       uuid.NewString(),
		scope:    scope,
		policy:   policy,
		store:    m.store,
		progress: m.progress,
		now:      m.Now,
		queue:    due,
		state:    StateInitialized,
	}
	if len(due) == 0 {
		c.state = StateCompleted
	} else {
		c.state = StatePresenting
		c.checkpoint(ctx)
	}

	m.mu.Lock()
	m.sessions[c.id] = c
	m.mu.Unlock()

	slog.Info("session started",
		"session", c.id,
		"policy", policy.Name(),
		"due_cards", len(due),
	)
	return c, nil
}

// Get returns a live session by handle.
func (m *Manager) Get(id string) (*Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

// Resume rebuilds a checkpointed session that is no longer live, reloading
// each remaining card so its scheduling state is current.
func (m *Manager) Resume(ctx context.Context, id string) (*Coordinator, error) {
	if c, err := m.Get(id); err == nil {
		return c, nil
	}
	if m.progress == nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	payload, err := m.progress.LoadProgress(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume session %s: %w", id, err)
	}
	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("resume session %s: corrupt checkpoint: %w", id, err)
	}
	policy, err := scheduler.PolicyFor(snap.Policy, m.params)
	if err != nil {
		return nil, fmt.Errorf("resume session %s: %w", id, err)
	}

	queue := make([]domain.Card, 0, len(snap.CardIDs))
	cursor := snap.Cursor
	for i, cardID := range snap.CardIDs {
		card, err := m.store.GetCard(ctx, cardID)
		if err != nil {
			// Cards can vanish between checkpoint and resume when a sync
			// removed them. Dropping one before the cursor shifts the
			// cursor down so the next unreviewed card stays current.
			if errors.Is(err, domain.ErrNotFound) {
				if i < snap.Cursor {
					cursor--
				}
				continue
			}
			return nil, fmt.Errorf("resume session %s: %w", id, err)
		}
		queue = append(queue, card)
	}
	if cursor > len(queue) {
		cursor = len(queue)
	}

	c := &Coordinator{
		id:       id,
		scope:    snap.Scope,
		policy:   policy,
		store:    m.store,
		progress: m.progress,
		now:      m.Now,
		queue:    queue,
		cursor:   cursor,
		state:    StatePresenting,
		counters: snap.Counters,
	}
	if cursor >= len(queue) {
		c.state = StateCompleted
	}

	m.mu.Lock()
	m.sessions[id] = c
	m.mu.Unlock()

	slog.Info("session resumed", "session", id, "remaining", len(queue)-cursor)
	return c, nil
}

// Abandon drops a session. Every already-recorded review stays persisted;
// there is nothing to compensate.
func (m *Manager) Abandon(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if m.progress != nil {
		_ = m.progress.ClearProgress(ctx, id)
	}
	slog.Info("session abandoned", "session", id)
	return nil
}
