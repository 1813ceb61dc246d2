// Package session provides the per-session conversational context store:
// rolling turn history, running summary, and the intent trail.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxHistory is the number of turns kept per session.
	DefaultMaxHistory = 20

	// DefaultMaxSessions is the store capacity before the oldest half is evicted.
	DefaultMaxSessions = 1000

	// DefaultTTL is how long an idle session survives.
	DefaultTTL = time.Hour
)

// Turn is one user/assistant exchange.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentRecord is one entry of the per-session intent trail.
type IntentRecord struct {
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Turn       int       `json:"turn"`
	Timestamp  time.Time `json:"timestamp"`
}

// Record is the stored context for one session.
// Missing fields from older records materialize as empty values.
type Record struct {
	Title               string                 `json:"title,omitempty"`
	History             []Turn                 `json:"history"`
	UserProfile         map[string]interface{} `json:"user_profile,omitempty"`
	LastIntent          string                 `json:"last_intent,omitempty"`
	IntentHistory       []IntentRecord         `json:"intent_history,omitempty"`
	ConversationSummary string                 `json:"conversation_summary,omitempty"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// Updates carries a partial record for merge semantics: nil fields are
// left untouched, non-nil fields replace the stored value.
type Updates struct {
	Title         *string
	History       *[]Turn
	UserProfile   map[string]interface{}
	LastIntent    *string
	IntentHistory *[]IntentRecord
	Summary       *string
}

// Store is the session context store contract.
type Store interface {
	// Get returns the session record, or nil when the session is unknown or expired.
	Get(ctx context.Context, sessionID string) (*Record, error)

	// Update merges the provided fields into the session record, creating it
	// if absent. updated_at is always refreshed.
	Update(ctx context.Context, sessionID string, updates Updates) error

	// AppendTurn pushes a user/assistant turn onto the history and trims it
	// to the configured window.
	AppendTurn(ctx context.Context, sessionID, userText, assistantText string) error

	// Clear removes the session entirely.
	Clear(ctx context.Context, sessionID string) error

	// CleanupExpired drops sessions idle past the TTL. Returns the count removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// MemoryStore is the in-memory Store used in production. All access goes
// through a single mutex; records handed out are copies.
type MemoryStore struct {
	sessions    map[string]*Record
	maxHistory  int
	maxSessions int
	ttl         time.Duration
	mu          sync.Mutex
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxHistory sets the per-session history window.
func WithMaxHistory(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithMaxSessions sets the store capacity.
func WithMaxSessions(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithTTL sets the idle expiry.
func WithTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*Record),
		maxHistory:  DefaultMaxHistory,
		maxSessions: DefaultMaxSessions,
		ttl:         DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	if time.Since(rec.UpdatedAt) > s.ttl {
		delete(s.sessions, sessionID)
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Update(ctx context.Context, sessionID string, updates Updates) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		if len(s.sessions) >= s.maxSessions {
			s.evictOldestHalf()
		}
		rec = &Record{}
		s.sessions[sessionID] = rec
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
	rec.UpdatedAt = time.Now()

	return nil
}

// AppendTurn 取消的 ctx 直接拒绝写入, 中断的会话不得留下半截回复.
func (s *MemoryStore) AppendTurn(ctx context.Context, sessionID, userText, assistantText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		if len(s.sessions) >= s.maxSessions {
			s.evictOldestHalf()
		}
		rec = &Record{}
		s.sessions[sessionID] = rec
	}

	rec.History = append(rec.History, Turn{
		User:      userText,
		Assistant: assistantText,
		Timestamp: time.Now(),
	})
	if len(rec.History) > s.maxHistory {
		rec.History = rec.History[len(rec.History)-s.maxHistory:]
	}
	rec.UpdatedAt = time.Now()

	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, rec := range s.sessions {
		if now.Sub(rec.UpdatedAt) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Session store: expired sessions removed", "count", removed)
	}
	return removed, nil
}

// Size returns the number of live sessions.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictOldestHalf discards the least recently updated half of the sessions.
// Must be called with lock held.
func (s *MemoryStore) evictOldestHalf() {
	type aged struct {
		id        string
		updatedAt time.Time
	}
	entries := make([]aged, 0, len(s.sessions))
	for id, rec := range s.sessions {
		entries = append(entries, aged{id: id, updatedAt: rec.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updatedAt.Before(entries[j].updatedAt)
	})

	target := len(entries) / 2
	if target < 1 {
		target = 1
	}
	for i := 0; i < target; i++ {
		delete(s.sessions, entries[i].id)
	}
	slog.Warn("Session store: capacity reached, oldest sessions evicted",
		"evicted", target,
		"remaining", len(s.sessions),
	)
}

func copyRecord(rec *Record) *Record {
	out := &Record{
		Title:               rec.Title,
		History:             copyTurns(rec.History),
		LastIntent:          rec.LastIntent,
		IntentHistory:       copyIntents(rec.IntentHistory),
		ConversationSummary: rec.ConversationSummary,
		UpdatedAt:           rec.UpdatedAt,
	}
	if rec.UserProfile != nil {
		out.UserProfile = make(map[string]interface{}, len(rec.UserProfile))
		for k, v := range rec.UserProfile {
			out.UserProfile[k] = v
		}
	}
	return out
}

func copyTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

func copyIntents(records []IntentRecord) []IntentRecord {
	if records == nil {
		return nil
	}
	out := make([]IntentRecord, len(records))
	copy(out, records)
	return out
}
