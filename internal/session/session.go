package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict means the stored log shrank below the base a rebase was
	// computed from.
	ErrConflict = errors.New("session changed underneath rebase")
)

// Session holds one conversation's log and metadata.
type Session struct {
	Key       string
	Log       schema.Log
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any
	// Compactions counts Replace and Rebase calls over the session's life.
	Compactions int
}

// Info summarizes a stored session without its messages.
type Info struct {
	Key         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Messages    int
	Compactions int
}

// Store persists conversation logs.
type Store interface {
	// Load returns the session for key or ErrNotFound.
	Load(ctx context.Context, key string) (*Session, error)
	// Append adds messages to the end of the log, creating the session if
	// needed.
	Append(ctx context.Context, key string, msgs ...schema.Message) error
	// Replace atomically swaps the whole log. Readers see either the old log
	// or the new one.
	Replace(ctx context.Context, key string, log schema.Log) error
	// Rebase replaces the first base messages with log and keeps every
	// message appended after them. It returns ErrConflict when fewer than
	// base messages are stored.
	Rebase(ctx context.Context, key string, base int, log schema.Log) error
	// Archive stores a snapshot of log under id.
	Archive(ctx context.Context, key string, id uuid.UUID, log schema.Log) error
	// ReadArchive returns a snapshot written by Archive.
	ReadArchive(ctx context.Context, key string, id uuid.UUID) (schema.Log, error)
	// List returns every session, most recently updated first.
	List(ctx context.Context) ([]Info, error)
	Close() error
}
