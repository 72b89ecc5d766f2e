// Package store persists cards, sets, projects and sources in SQLite. It is
// the sole writer of card scheduling fields; ApplyReview is the single
// mutation point and serializes concurrent writers per card through an
// optimistic version check.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/srslab/revise/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Scope selects the cards of one set or of every set in a project. Exactly
// one field must be non-empty.
type Scope struct {
	SetID     string
	ProjectID string
}

func (s Scope) validate() error {
	if (s.SetID == "") == (s.ProjectID == "") {
		return fmt.Errorf("scope needs exactly one of set or project: %w", domain.ErrInvalidInput)
	}
	return nil
}

// DB wraps the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway, and a single pooled connection keeps
	// ":memory:" databases from silently splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w: %w", domain.ErrStoreUnavailable, err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `id, set_id, question, answer, context, state, interval,
	reps, ease_factor, leitner_box, next_review, last_reviewed,
	total_reviews, correct_reviews, version`

func scanCard(row interface{ Scan(...any) error }) (domain.Card, error) {
	var c domain.Card
	var lastReviewed sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.SetID,
		&c.Question,
		&c.Answer,
		&c.Context,
		&c.State,
		&c.Interval,
		&c.Reps,
		&c.EaseFactor,
		&c.LeitnerBox,
		&c.NextReview,
		&lastReviewed,
		&c.TotalReviews,
		&c.CorrectReviews,
		&c.Version,
	)
	if err != nil {
		return domain.Card{}, err
	}
	if lastReviewed.Valid {
		c.LastReviewed = lastReviewed.Time
	}
	return c, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// InsertCard inserts a new card with its initial scheduling fields. New
// cards are due immediately.
func (db *DB) InsertCard(ctx context.Context, c domain.Card) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (id, set_id, question, answer, context, state, interval,
			reps, ease_factor, leitner_box, next_review, last_reviewed,
			total_reviews, correct_reviews, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.SetID, c.Question, c.Answer, c.Context, c.State, c.Interval,
		c.Reps, c.EaseFactor, c.LeitnerBox, c.NextReview, nullTime(c.LastReviewed),
		c.TotalReviews, c.CorrectReviews, c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w: %w", c.ID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetCard retrieves one card by ID.
func (db *DB) GetCard(ctx context.Context, cardID string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE id = ?
	`, cardID)

	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %s: %w", cardID, domain.ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to get card %s: %w: %w", cardID, domain.ErrStoreUnavailable, err)
	}
	return c, nil
}

// GetDue returns the cards in scope with next_review <= now, oldest due
// first, ties broken by card ID so the ordering is deterministic. limit <= 0
// means no limit.
func (db *DB) GetDue(ctx context.Context, scope Scope, now time.Time, limit int) ([]domain.Card, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unbounded
	}

	var rows *sql.Rows
	var err error
	if scope.SetID != "" {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT `+cardColumns+`
			FROM cards
			WHERE set_id = ? AND next_review <= ?
			ORDER BY next_review ASC, id ASC
			LIMIT ?
		`, scope.SetID, now, limit)
	} else {
		rows, err = db.conn.QueryContext(ctx, `
			SELECT `+cardColumns+`
			FROM cards
			WHERE set_id IN (SELECT id FROM sets WHERE project_id = ?) AND next_review <= ?
			ORDER BY next_review ASC, id ASC
			LIMIT ?
		`, scope.ProjectID, now, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query due cards: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due card: %w: %w", domain.ErrStoreUnavailable, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due cards: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return cards, nil
}

// ApplyReview atomically replaces the scheduling fields of one card. The
// update only lands if the persisted version still equals expectedVersion;
// a stale caller gets domain.ErrConcurrentModification and the persisted
// state is left untouched.
func (db *DB) ApplyReview(ctx context.Context, c domain.Card, expectedVersion int64) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET state = ?, interval = ?, reps = ?, ease_factor = ?, leitner_box = ?,
			next_review = ?, last_reviewed = ?, total_reviews = ?,
			correct_reviews = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		c.State, c.Interval, c.Reps, c.EaseFactor, c.LeitnerBox,
		c.NextReview, nullTime(c.LastReviewed), c.TotalReviews,
		c.CorrectReviews,
		c.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w: %w", c.ID, domain.ErrStoreUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for card %s: %w: %w", c.ID, domain.ErrStoreUnavailable, err)
	}
	if n == 0 {
		// Either the card is gone or someone got there first.
		var exists int
		err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE id = ?`, c.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("card %s: %w", c.ID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check card %s: %w: %w", c.ID, domain.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("card %s version %d is stale: %w", c.ID, expectedVersion, domain.ErrConcurrentModification)
	}
	return nil
}

// ListCardsBySet retrieves every card in a set, ordered by ID.
func (db *DB) ListCardsBySet(ctx context.Context, setID string) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE set_id = ?
		ORDER BY id ASC
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for set %s: %w: %w", setID, domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card for set %s: %w: %w", setID, domain.ErrStoreUnavailable, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards for set %s: %w: %w", setID, domain.ErrStoreUnavailable, err)
	}
	return cards, nil
}

// DeleteCard removes a card by ID.
func (db *DB) DeleteCard(ctx context.Context, cardID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, cardID)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w: %w", cardID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// UpsertProject inserts a project or refreshes its name.
func (db *DB) UpsertProject(ctx context.Context, p domain.Project) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO projects (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, p.ID, p.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w: %w", p.ID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetProject retrieves one project by ID.
func (db *DB) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var p domain.Project
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, name FROM projects WHERE id = ?
	`, projectID).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("failed to get project %s: %w: %w", projectID, domain.ErrStoreUnavailable, err)
	}
	return p, nil
}

// UpsertSet inserts a set or refreshes its name.
func (db *DB) UpsertSet(ctx context.Context, s domain.Set) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sets (id, project_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET project_id = excluded.project_id, name = excluded.name
	`, s.ID, s.ProjectID, s.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert set %s: %w: %w", s.ID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetSet retrieves one set by ID.
func (db *DB) GetSet(ctx context.Context, setID string) (domain.Set, error) {
	var s domain.Set
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, project_id, name FROM sets WHERE id = ?
	`, setID).Scan(&s.ID, &s.ProjectID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Set{}, fmt.Errorf("set %s: %w", setID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Set{}, fmt.Errorf("failed to get set %s: %w: %w", setID, domain.ErrStoreUnavailable, err)
	}
	return s, nil
}

// ListSetsByProject retrieves every set in a project, ordered by ID.
func (db *DB) ListSetsByProject(ctx context.Context, projectID string) ([]domain.Set, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, project_id, name FROM sets WHERE project_id = ?
		ORDER BY id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets for project %s: %w: %w", projectID, domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sets []domain.Set
	for rows.Next() {
		var s domain.Set
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan set for project %s: %w: %w", projectID, domain.ErrStoreUnavailable, err)
		}
		sets = append(sets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sets for project %s: %w: %w", projectID, domain.ErrStoreUnavailable, err)
	}
	return sets, nil
}

// InsertSource registers a new card source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, projectID, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (project_id, path, type) VALUES (?, ?, ?)
	`, projectID, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w: %w", path, domain.ErrStoreUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w: %w", path, domain.ErrStoreUnavailable, err)
	}
	return id, nil
}

// GetAllSources retrieves every registered source.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, project_id, path, type, last_scanned FROM sources ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		var scanned sql.NullTime
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Path, &s.Type, &scanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w: %w", domain.ErrStoreUnavailable, err)
		}
		if scanned.Valid {
			s.LastScanned = scanned.Time
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return sources, nil
}

// DeleteSource removes a source registration. The cards it produced stay
// until the next sync reconciles them.
func (db *DB) DeleteSource(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// UpdateSourceLastScanned stamps a source after a successful reconciliation.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, id int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source %d: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	return nil
}
