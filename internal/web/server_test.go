package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/srslab/revise/internal/domain"
	"github.com/srslab/revise/internal/scheduler"
	"github.com/srslab/revise/internal/session"
	"github.com/srslab/revise/internal/stats"
	"github.com/srslab/revise/internal/store"
	"github.com/srslab/revise/internal/syncer"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.UpsertProject(ctx, domain.Project{ID: "proj", Name: "Biology"}); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	if err := db.UpsertSet(ctx, domain.Set{ID: "set-a", ProjectID: "proj", Name: "Cells"}); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}
	for i := 1; i <= 3; i++ {
		err := db.InsertCard(ctx, domain.Card{
			ID:         fmt.Sprintf("c%d", i),
			SetID:      "set-a",
			Question:   fmt.Sprintf("question %d", i),
			Answer:     fmt.Sprintf("answer %d", i),
			State:      domain.StateNew,
			EaseFactor: 2.5,
			LeitnerBox: 1,
			NextReview: testNow.Add(-time.Duration(4-i) * time.Hour), // c1 most overdue
		})
		if err != nil {
			t.Fatalf("InsertCard: %v", err)
		}
	}

	manager := session.NewManager(db, db, scheduler.DefaultParams())
	manager.Now = func() time.Time { return testNow }
	aggregator := stats.New(db)
	aggregator.Now = func() time.Time { return testNow }

	return NewServer(db, manager, aggregator, syncer.New(db, t.TempDir())), db
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestReviewFlowEndToEnd(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/sessions", map[string]any{"set_id": "set-a"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start session: status %d, body %s", w.Code, w.Body)
	}
	sess := decode[sessionView](t, w)
	if sess.Remaining != 3 || sess.State != session.StatePresenting {
		t.Fatalf("Unexpected session: %+v", sess)
	}
	if sess.CurrentCard == nil || sess.CurrentCard.ID != "c1" {
		t.Fatalf("Expected c1 first, got %+v", sess.CurrentCard)
	}

	base := "/api/sessions/" + sess.ID

	// Submitting before reveal is rejected and nothing advances.
	w = doJSON(t, s, http.MethodPost, base+"/review", map[string]any{"quality": 4})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("submit before reveal: status %d", w.Code)
	}

	for i := 0; i < 3; i++ {
		w = doJSON(t, s, http.MethodPost, base+"/reveal", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("reveal %d: status %d, body %s", i, w.Code, w.Body)
		}
		answer := decode[map[string]string](t, w)
		if answer["answer"] == "" {
			t.Fatalf("reveal %d: empty answer", i)
		}

		w = doJSON(t, s, http.MethodPost, base+"/review", map[string]any{
			"quality": 4, "response_time_seconds": 2.5,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("review %d: status %d, body %s", i, w.Code, w.Body)
		}
		res := decode[submitReviewResponse](t, w)
		if i < 2 && (res.Completed || res.NextCard == nil) {
			t.Fatalf("review %d: expected a next card, got %+v", i, res)
		}
		if i == 2 && !res.Completed {
			t.Fatalf("Expected completion after the third review, got %+v", res)
		}
		if i == 2 && res.Counters.Reviewed != 3 {
			t.Fatalf("Expected 3 reviewed, got %+v", res.Counters)
		}
	}

	// The completed session reports no current card.
	w = doJSON(t, s, http.MethodGet, base+"/card", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get card: status %d", w.Code)
	}
	done := decode[map[string]bool](t, w)
	if !done["completed"] {
		t.Errorf("Expected completed card response, got %v", done)
	}
}

func TestCardViewHidesAnswer(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/sessions", map[string]any{"set_id": "set-a"})
	sess := decode[sessionView](t, w)

	w = doJSON(t, s, http.MethodGet, "/api/sessions/"+sess.ID+"/card", nil)
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, leaked := raw["answer"]; leaked {
		t.Error("Card view leaked the answer before reveal")
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/sessions", map[string]any{"set_id": "set-a"})
	sess := decode[sessionView](t, w)
	base := "/api/sessions/" + sess.ID

	doJSON(t, s, http.MethodPost, base+"/reveal", nil)

	t.Run("quality out of range", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, base+"/review", map[string]any{"quality": 6})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("missing quality", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, base+"/review", map[string]any{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("session still on the same card", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, base+"/card", nil)
		card := decode[cardView](t, w)
		if card.ID != "c1" {
			t.Errorf("Rejected submits advanced the session to %s", card.ID)
		}
	})
}

func TestConcurrentModificationMapsTo409(t *testing.T) {
	s, _ := newTestServer(t)

	w1 := doJSON(t, s, http.MethodPost, "/api/sessions", map[string]any{"set_id": "set-a"})
	s1 := decode[sessionView](t, w1)
	w2 := doJSON(t, s, http.MethodPost, "/api/sessions", map[string]any{"set_id": "set-a"})
	s2 := decode[sessionView](t, w2)

	doJSON(t, s, http.MethodPost, "/api/sessions/"+s1.ID+"/reveal", nil)
	doJSON(t, s, http.MethodPost, "/api/sessions/"+s2.ID+"/reveal", nil)

	w := doJSON(t, s, http.MethodPost, "/api/sessions/"+s1.ID+"/review", map[string]any{"quality": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("winner review: status %d, body %s", w.Code, w.Body)
	}

	w = doJSON(t, s, http.MethodPost, "/api/sessions/"+s2.ID+"/review", map[string]any{"quality": 5})
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for stale session, got %d (body %s)", w.Code, w.Body)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/sessions/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestStatsEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("set stats", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/sets/set-a/stats", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status %d", w.Code)
		}
		got := decode[domain.SetStats](t, w)
		if got.TotalCards != 3 || got.DueCards != 3 {
			t.Errorf("Unexpected stats: %+v", got)
		}
	})

	t.Run("project stats", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/projects/proj/stats", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status %d", w.Code)
		}
		got := decode[domain.ProjectStats](t, w)
		if got.TotalSets != 1 || got.TotalCards != 3 || got.DueToday != 3 {
			t.Errorf("Unexpected stats: %+v", got)
		}
	})

	t.Run("missing set is 404", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/api/sets/ghost/stats", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}

func TestSourceEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/sources", map[string]any{
		"project_id": "proj", "path": "https://github.com/me/decks.git",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add source: status %d, body %s", w.Code, w.Body)
	}

	w = doJSON(t, s, http.MethodGet, "/api/sources", nil)
	sources := decode[[]domain.Source](t, w)
	if len(sources) != 1 || sources[0].Type != "git" {
		t.Fatalf("Unexpected sources: %+v", sources)
	}

	w = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/sources/%d", sources[0].ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete source: status %d", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/sources", map[string]any{"path": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty path, got %d", w.Code)
	}
}
