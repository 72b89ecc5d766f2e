package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/srslab/revise/internal/domain"
)

// cardRecord is the JSON shape of a card at the persistence boundary. It
// round-trips every scheduling field exactly.
type cardRecord struct {
	ID             string     `json:"id"`
	SetID          string     `json:"set_id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	Context        string     `json:"context,omitempty"`
	LearningState  string     `json:"learning_state"`
	Interval       int        `json:"interval"`
	Repetitions    int        `json:"repetitions"`
	EaseFactor     float64    `json:"ease_factor"`
	LeitnerBox     int        `json:"leitner_box"`
	NextReview     time.Time  `json:"next_review"`
	LastReviewed   *time.Time `json:"last_reviewed,omitempty"`
	TotalReviews   int        `json:"total_reviews"`
	CorrectReviews int        `json:"correct_reviews"`
	Version        int64      `json:"version"`
}

func toRecord(c domain.Card) cardRecord {
	r := cardRecord{
		ID:             c.ID,
		SetID:          c.SetID,
		Question:       c.Question,
		Answer:         c.Answer,
		Context:        c.Context,
		LearningState:  string(c.State),
		Interval:       c.Interval,
		Repetitions:    c.Reps,
		EaseFactor:     c.EaseFactor,
		LeitnerBox:     c.LeitnerBox,
		NextReview:     c.NextReview,
		TotalReviews:   c.TotalReviews,
		CorrectReviews: c.CorrectReviews,
		Version:        c.Version,
	}
	if !c.LastReviewed.IsZero() {
		t := c.LastReviewed
		r.LastReviewed = &t
	}
	return r
}

func (r cardRecord) toCard() domain.Card {
	c := domain.Card{
		ID:             r.ID,
		SetID:          r.SetID,
		Question:       r.Question,
		Answer:         r.Answer,
		Context:        r.Context,
		State:          domain.LearningState(r.LearningState),
		Interval:       r.Interval,
		Reps:           r.Repetitions,
		EaseFactor:     r.EaseFactor,
		LeitnerBox:     r.LeitnerBox,
		NextReview:     r.NextReview,
		TotalReviews:   r.TotalReviews,
		CorrectReviews: r.CorrectReviews,
		Version:        r.Version,
	}
	if r.LastReviewed != nil {
		c.LastReviewed = *r.LastReviewed
	}
	return c
}

// listEnvelope accepts the two list shapes the backend emits, either a bare
// array or a {"results": [...]} page. Normalization happens exactly once
// here; everything past this point sees a plain slice.
type listEnvelope struct {
	Results []cardRecord
}

func (e *listEnvelope) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &e.Results)
	}
	var page struct {
		Results []cardRecord `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return err
	}
	e.Results = page.Results
	return nil
}

// RemoteStore talks to a backend card API over HTTP. It implements the same
// card operations as DB so the session coordinator and stats aggregator can
// run against either.
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewRemoteStore builds a client for the backend at baseURL. A nil client
// falls back to a default with a 10 second timeout.
func NewRemoteStore(baseURL string, client *http.Client) *RemoteStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteStore{baseURL: baseURL, client: client}
}

func (rs *RemoteStore) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, rs.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := rs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w: %w", method, path, domain.ErrStoreUnavailable, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConcurrentModification
	default:
		return fmt.Errorf("unexpected status %d: %w", resp.StatusCode, domain.ErrStoreUnavailable)
	}
}

// GetCard loads one card from the backend.
func (rs *RemoteStore) GetCard(ctx context.Context, cardID string) (domain.Card, error) {
	resp, err := rs.do(ctx, http.MethodGet, "/cards/"+url.PathEscape(cardID), nil)
	if err != nil {
		return domain.Card{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Card{}, fmt.Errorf("load card %s: %w", cardID, statusError(resp))
	}
	var rec cardRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return domain.Card{}, fmt.Errorf("decode card %s: %w: %w", cardID, domain.ErrStoreUnavailable, err)
	}
	return rec.toCard(), nil
}

// GetDue queries the backend for due cards in scope.
func (rs *RemoteStore) GetDue(ctx context.Context, scope Scope, now time.Time, limit int) ([]domain.Card, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	if scope.SetID != "" {
		q.Set("set", scope.SetID)
	} else {
		q.Set("project", scope.ProjectID)
	}
	q.Set("now", now.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(limit))

	resp, err := rs.do(ctx, http.MethodGet, "/cards/due?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query due cards: %w", statusError(resp))
	}

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode due cards: %w: %w", domain.ErrStoreUnavailable, err)
	}
	cards := make([]domain.Card, 0, len(env.Results))
	for _, rec := range env.Results {
		cards = append(cards, rec.toCard())
	}
	return cards, nil
}

// ApplyReview saves a reviewed card, carrying the caller's expected version
// so the backend can reject stale writes.
func (rs *RemoteStore) ApplyReview(ctx context.Context, c domain.Card, expectedVersion int64) error {
	payload := struct {
		Card            cardRecord `json:"card"`
		ExpectedVersion int64      `json:"expected_version"`
	}{toRecord(c), expectedVersion}

	resp, err := rs.do(ctx, http.MethodPut, "/cards/"+url.PathEscape(c.ID), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("save card %s: %w", c.ID, statusError(resp))
	}
	return nil
}
