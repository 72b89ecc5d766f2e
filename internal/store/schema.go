package store

const schema = `
-- The 'projects' table groups flashcard sets.
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

-- The 'sets' table holds named collections of cards.
CREATE TABLE IF NOT EXISTS sets (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,

    FOREIGN KEY(project_id) REFERENCES projects(id)
);

-- The 'cards' table stores each flashcard together with its scheduling
-- fields. 'version' backs the optimistic-concurrency contract: every
-- persisted review increments it.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    set_id TEXT NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'new',
    interval INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    leitner_box INTEGER NOT NULL DEFAULT 1,
    next_review DATETIME NOT NULL,
    last_reviewed DATETIME,
    total_reviews INTEGER NOT NULL DEFAULT 0,
    correct_reviews INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(set_id) REFERENCES sets(id)
);

CREATE INDEX IF NOT EXISTS idx_cards_due ON cards(set_id, next_review, id);

-- The 'sources' table tracks where a set's cards come from, either a local
-- directory or a git repository of markdown files.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME,

    FOREIGN KEY(project_id) REFERENCES projects(id)
);

-- The 'session_progress' table checkpoints in-flight study sessions so an
-- abandoned session can be resumed.
CREATE TABLE IF NOT EXISTS session_progress (
    id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);
`
