package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/srslab/revise/internal/domain"
)

const dueCardJSON = `{
	"id": "c1", "set_id": "set-a",
	"question": "q", "answer": "a",
	"learning_state": "review",
	"interval": 6, "repetitions": 2, "ease_factor": 2.6, "leitner_box": 1,
	"next_review": "2026-03-09T00:00:00Z",
	"total_reviews": 3, "correct_reviews": 2, "version": 4
}`

func TestRemoteStoreNormalizesBothListShapes(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	shapes := map[string]string{
		"bare array":         `[` + dueCardJSON + `]`,
		"paginated envelope": `{"count": 1, "results": [` + dueCardJSON + `]}`,
	}

	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/cards/due" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.URL.Query().Get("set"); got != "set-a" {
					t.Errorf("expected set=set-a, got %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(body))
			}))
			defer srv.Close()

			rs := NewRemoteStore(srv.URL, srv.Client())
			cards, err := rs.GetDue(context.Background(), Scope{SetID: "set-a"}, now, 20)
			if err != nil {
				t.Fatalf("GetDue: %v", err)
			}
			if len(cards) != 1 {
				t.Fatalf("Expected 1 card, got %d", len(cards))
			}
			c := cards[0]
			if c.ID != "c1" || c.Reps != 2 || c.State != domain.StateReview || c.Version != 4 {
				t.Errorf("Card fields lost on ingress: %+v", c)
			}
		})
	}
}

func TestRemoteStoreErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"404 maps to not found", http.StatusNotFound, domain.ErrNotFound},
		{"409 maps to concurrent modification", http.StatusConflict, domain.ErrConcurrentModification},
		{"500 maps to store unavailable", http.StatusInternalServerError, domain.ErrStoreUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			rs := NewRemoteStore(srv.URL, srv.Client())
			err := rs.ApplyReview(context.Background(), domain.Card{ID: "c1"}, 3)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRemoteStoreNetworkFailureIsStoreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	rs := NewRemoteStore(srv.URL, nil)
	_, err := rs.GetCard(context.Background(), "c1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable, got %v", err)
	}
}
