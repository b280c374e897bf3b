package main

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RefStore is the externally persisted thread -> linked item mapping. The
// workflow core only reads it (the caller loads the reference before each
// run); writes happen as side effects of the link/create handlers. Treated
// as eventually consistent: a write is not assumed visible to the very next
// invocation in the same thread.
type RefStore interface {
	Load(chatID, rootID string) (*LinkedReference, error)
	Save(ref LinkedReference) error
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS linked_references (
		chat_id         TEXT NOT NULL,
		root_id         TEXT NOT NULL,
		external_system TEXT NOT NULL DEFAULT 'github',
		external_id     TEXT NOT NULL,
		external_url    TEXT DEFAULT '',
		created_by      TEXT DEFAULT '',
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chat_id, root_id)
	);

	CREATE TABLE IF NOT EXISTS feedback_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id      TEXT NOT NULL,
		target_user  TEXT NOT NULL,
		topic        TEXT DEFAULT '',
		requested_by TEXT DEFAULT '',
		task_ref     TEXT DEFAULT '',
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback_log(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	// Migration: add task_ref column for databases created before task
	// tracking was wired in.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('feedback_log') WHERE name = 'task_ref'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE feedback_log ADD COLUMN task_ref TEXT DEFAULT ''`)
	}

	return db, nil
}

func LoadLinkedReference(db *sql.DB, chatID, rootID string) (*LinkedReference, error) {
	row := db.QueryRow(
		`SELECT chat_id, root_id, external_system, external_id, external_url, created_by, created_at
		 FROM linked_references WHERE chat_id = ? AND root_id = ?`,
		chatID, rootID,
	)
	var ref LinkedReference
	err := row.Scan(&ref.ChatID, &ref.RootID, &ref.ExternalSystem, &ref.ExternalID,
		&ref.ExternalURL, &ref.CreatedBy, &ref.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

/// SaveLinkedReference upserts: re-linking the same thread replaces the
// binding (the core itself never calls this for an already linked thread).
func SaveLinkedReference(db *sql.DB, ref LinkedReference) error {
	_, err := db.Exec(
		`INSERT INTO linked_references (chat_id, root_id, external_system, external_id, external_url, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id, root_id) DO UPDATE SET
		   external_system = excluded.external_system,
		   external_id     = excluded.external_id,
		   external_url    = excluded.external_url,
		   created_by      = excluded.created_by`,
		ref.ChatID, ref.RootID, ref.ExternalSystem, ref.ExternalID,
		ref.ExternalURL, ref.CreatedBy, refCreatedAt(ref),
	)
	return err
}

func refCreatedAt(ref LinkedReference) time.Time {
	if ref.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return ref.CreatedAt
}

func InsertFeedbackEntry(db *sql.DB, e FeedbackEntry) error {
	_, err := db.Exec(
		`INSERT INTO feedback_log (chat_id, target_user, topic, requested_by, task_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ChatID, e.TargetUser, e.Topic, e.RequestedBy, e.TaskRef, feedbackCreatedAt(e),
	)
	return err
}

func feedbackCreatedAt(e FeedbackEntry) time.Time {
	if e.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return e.CreatedAt.UTC()
}

// GetFeedbackSince compares in UTC: the driver stores time.Time as text with
// the zone offset, and SQLite orders that text lexicographically, so a
// non-UTC bound would silently skip or re-report entries.
func GetFeedbackSince(db *sql.DB, since time.Time) ([]FeedbackEntry, error) {
	rows, err := db.Query(
		`SELECT id, chat_id, target_user, topic, requested_by, task_ref, created_at
		 FROM feedback_log WHERE created_at >= ? ORDER BY created_at ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FeedbackEntry
	for rows.Next() {
		var e FeedbackEntry
		if err := rows.Scan(&e.ID, &e.ChatID, &e.TargetUser, &e.Topic, &e.RequestedBy, &e.TaskRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// sqliteRefStore adapts the package-level queries to the RefStore interface
// handlers are built against.
type sqliteRefStore struct {
	db *sql.DB
}

func NewSQLiteRefStore(db *sql.DB) RefStore {
	return &sqliteRefStore{db: db}
}

func (s *sqliteRefStore) Load(chatID, rootID string) (*LinkedReference, error) {
	return LoadLinkedReference(s.db, chatID, rootID)
}

func (s *sqliteRefStore) Save(ref LinkedReference) error {
	return SaveLinkedReference(s.db, ref)
}
