package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStore is an optional durable session backing for deployments that
// must survive restarts. Every I/O failure surfaces as TransientError so
// callers can degrade to empty context instead of failing the request.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
	ttl        time.Duration
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS chat_session (
	session_id TEXT PRIMARY KEY,
	record TEXT NOT NULL,
	updated_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_session_updated ON chat_session (updated_ts);
`

// NewSQLiteStore opens (and migrates) a sqlite-backed session store.
func NewSQLiteStore(dsn string, opts ...MemoryStoreOption) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode with a busy timeout avoids locking issues between the
	// request path and the cleanup job.
	db, err := sql.Open("sqlite", dsn+"&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	// SQLite: a single connection is optimal with WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sessionSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to migrate session schema")
	}

	// Reuse the memory-store option set for the shared tuning knobs.
	tuner := &MemoryStore{maxHistory: DefaultMaxHistory, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(tuner)
	}

	return &SQLiteStore{
		db:         db,
		maxHistory: tuner.maxHistory,
		ttl:        tuner.ttl,
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	var raw string
	var updatedTs int64
	err := s.db.QueryRowContext(ctx,
		"SELECT record, updated_ts FROM chat_session WHERE session_id = ?", sessionID,
	).Scan(&raw, &updatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	if time.Since(time.Unix(updatedTs, 0)) > s.ttl {
		_ = s.Clear(ctx, sessionID)
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// A corrupt row is equivalent to an absent session.
		_ = s.Clear(ctx, sessionID)
		return nil, nil
	}
	rec.UpdatedAt = time.Unix(updatedTs, 0)
	return &rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, sessionID string, updates Updates) error {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{}
	}

	if updates.Title != nil {
		rec.Title = *updates.Title
	}
	if updates.History != nil {
		rec.History = copyTurns(*updates.History)
	}
	if updates.UserProfile != nil {
		rec.UserProfile = updates.UserProfile
	}
	if updates.LastIntent != nil {
		rec.LastIntent = *updates.LastIntent
	}
	if updates.IntentHistory != nil {
		rec.IntentHistory = copyIntents(*updates.IntentHistory)
	}
	if updates.Summary != nil {
		rec.ConversationSummary = *updates.Summary
	}

	return s.put(ctx, sessionID, rec)
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, userText, assistantText string) error {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{}
	}

	rec.History = append(rec.History, Turn{
		User:      userText,
		Assistant: assistantText,
		Timestamp: time.Now(),
	})
	if len(rec.History) > s.maxHistory {
		rec.History = rec.History[len(rec.History)-s.maxHistory:]
	}

	return s.put(ctx, sessionID, rec)
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chat_session WHERE session_id = ?", sessionID)
	if err != nil {
		return &TransientError{Err: err}
	}
	return nil
}

func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.ttl).Unix()
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_session WHERE updated_ts < ?", cutoff)
	if err != nil {
		return 0, &TransientError{Err: err}
	}
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports
	return int(n), nil
}

func (s *SQLiteStore) put(ctx context.Context, sessionID string, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return &TransientError{Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_session (session_id, record, updated_ts) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET record = excluded.record, updated_ts = excluded.updated_ts`,
		sessionID, string(raw), time.Now().Unix(),
	)
	if err != nil {
		return &TransientError{Err: err}
	}
	return nil
}
