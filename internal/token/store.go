package token

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"watchtower/pkg/interfaces"
	"watchtower/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	key        TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tokens_user_id ON tokens(user_id);
`

// Store is the SQLite-backed token store. Writes funnel through a single
// writer goroutine to avoid SQLite write contention; reads go straight to
// the pooled connection. Deletion hooks run after a delete has committed.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	hookMu sync.RWMutex
	hooks  []func(key string)
}

// writeOperation carries one write into the writer goroutine.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies the schema, and starts the writer
// goroutine.
func NewStore(path string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(timeout)
	db.SetConnMaxIdleTime(timeout / 3)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply token schema: %w", err)
	}

	store := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			op.result <- op.operation(s.db)
		case <-s.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	s.mu.RUnlock()

	op := writeOperation{
		operation: operation,
		result:    make(chan error, 1),
	}

	select {
	case s.writeChannel <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return interfaces.ErrStoreClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create mints a new token for the user. The key is a server-generated
// UUID; clients never supply keys.
func (s *Store) Create(ctx context.Context, userID string) (*types.Token, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	token := &types.Token{
		Key:       uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	err := s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO tokens (key, user_id, created_at) VALUES (?, ?, ?)",
			token.Key, token.UserID, token.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	return token, nil
}

// Lookup returns the token bound to the key, or ErrTokenNotFound.
func (s *Store) Lookup(ctx context.Context, key string) (*types.Token, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, interfaces.ErrStoreClosed
	}
	s.mu.RUnlock()

	var token types.Token
	err := s.db.QueryRowContext(ctx,
		"SELECT key, user_id, created_at FROM tokens WHERE key = ?", key).
		Scan(&token.Key, &token.UserID, &token.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	return &token, nil
}

// Delete removes the token and, once the delete has committed, invokes
// every registered deletion hook with the key.
func (s *Store) Delete(ctx context.Context, key string) error {
	var affected int64
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, "DELETE FROM tokens WHERE key = ?", key)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if affected == 0 {
		return interfaces.ErrTokenNotFound
	}

	s.hookMu.RLock()
	hooks := make([]func(string), len(s.hooks))
	copy(hooks, s.hooks)
	s.hookMu.RUnlock()

	for _, hook := range hooks {
		hook(key)
	}

	return nil
}

// OnDelete registers a deletion hook. Safe to call while deletes are in
// flight; the hook sees only deletes that commit after registration.
func (s *Store) OnDelete(hook func(key string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Close stops the writer goroutine and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		log.Printf("Failed to close token database: %v", err)
		return err
	}
	return nil
}
