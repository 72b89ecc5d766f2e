// Package syncer reconciles registered deck sources with the card store.
// Each source becomes one flashcard set: new cards are inserted due
// immediately, cards whose content disappeared from the source are removed,
// and everything else keeps its review history untouched.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/srslab/revise/internal/deck"
	"github.com/srslab/revise/internal/domain"
	"github.com/srslab/revise/internal/gitsource"
	"github.com/srslab/revise/internal/store"
)

// Syncer walks deck sources and reconciles their cards into the store.
type Syncer struct {
	db       *store.DB
	reposDir string

	// Now is the clock used to stamp new cards and scans; overridable in
	// tests.
	Now func() time.Time
}

// New builds a syncer. reposDir is where git sources get checked out.
func New(db *store.DB, reposDir string) *Syncer {
	return &Syncer{db: db, reposDir: reposDir, Now: time.Now}
}

// SourceType classifies a source path as "git" or "local".
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return "git"
	}
	return "local"
}

// SetIDFor is the stable set identity of a source.
func SetIDFor(source domain.Source) string {
	return fmt.Sprintf("source-%d", source.ID)
}

// Run reconciles every registered source. Per-source failures are logged
// and skipped so one broken repository cannot block the rest.
func (s *Syncer) Run(ctx context.Context) error {
	slog.Info("starting sync for all sources")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if len(sources) == 0 {
		slog.Info("no sources configured")
		return nil
	}

	for _, source := range sources {
		if err := s.syncSource(ctx, source); err != nil {
			slog.Error("source sync failed", "source", source.Path, "error", err)
		}
	}
	slog.Info("sync complete")
	return nil
}

func (s *Syncer) syncSource(ctx context.Context, source domain.Source) error {
	localPath := source.Path
	if source.Type == "git" {
		var err error
		localPath, err = gitURLToLocalPath(s.reposDir, source.Path)
		if err != nil {
			return err
		}
		if err := gitsource.Sync(ctx, source.Path, localPath); err != nil {
			return err
		}
	}

	set := domain.Set{
		ID:        SetIDFor(source),
		ProjectID: source.ProjectID,
		Name:      filepath.Base(strings.TrimSuffix(source.Path, ".git")),
	}
	if err := s.db.UpsertSet(ctx, set); err != nil {
		return err
	}

	return s.reconcile(ctx, source, set, localPath)
}

// reconcile walks the checkout, parses every markdown deck and converges
// the set's cards on what the files contain.
func (s *Syncer) reconcile(ctx context.Context, source domain.Source, set domain.Set, root string) error {
	now := s.Now()
	found := make(map[string]bool)
	var inserted, parseErrors int

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		entries, parseErr := deck.ParseFile(path)
		if parseErr != nil {
			parseErrors++
			slog.Warn("deck parse failed", "path", path, "error", parseErr)
		}
		for _, entry := range entries {
			id := deck.ID(entry)
			found[id] = true

			_, findErr := s.db.GetCard(ctx, id)
			if findErr == nil {
				continue
			}
			if !errors.Is(findErr, domain.ErrNotFound) {
				return findErr
			}

			card := domain.Card{
				ID:         id,
				SetID:      set.ID,
				Question:   entry.Question,
				Answer:     entry.Answer,
				Context:    entry.Context,
				State:      domain.StateNew,
				Interval:   0,
				EaseFactor: 2.5,
				LeitnerBox: 1,
				NextReview: now,
			}
			if insertErr := s.db.InsertCard(ctx, card); insertErr != nil {
				return insertErr
			}
			inserted++
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", root, walkErr)
	}

	existing, err := s.db.ListCardsBySet(ctx, set.ID)
	if err != nil {
		return err
	}
	var orphaned int
	for _, card := range existing {
		if !found[card.ID] {
			if err := s.db.DeleteCard(ctx, card.ID); err != nil {
				slog.Warn("failed to delete orphaned card", "card", card.ID, "error", err)
				continue
			}
			orphaned++
		}
	}

	if err := s.db.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
		slog.Warn("failed to update last scanned", "source", source.ID, "error", err)
	}

	slog.Info("source reconciled",
		"path", source.Path,
		"cards", len(found),
		"inserted", inserted,
		"orphaned_deleted", orphaned,
		"parse_errors", parseErrors,
	)
	return nil
}

// gitURLToLocalPath maps a clone URL onto a checkout directory under
// baseDir, handling both https and scp-style git@host:path URLs.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		sanitized := strings.TrimSuffix(parsed.Path, ".git")
		return filepath.Join(baseDir, parsed.Host, sanitized), nil
	}

	if strings.Contains(repoURL, "@") {
		parts := strings.Split(repoURL, ":")
		if len(parts) == 2 {
			hostAndUser := strings.Split(parts[0], "@")
			if len(hostAndUser) == 2 {
				repoPath := strings.TrimSuffix(parts[1], ".git")
				return filepath.Join(baseDir, hostAndUser[1], repoPath), nil
			}
		}
	}
	return "", fmt.Errorf("could not parse git URL %s: %w", repoURL, domain.ErrInvalidInput)
}
