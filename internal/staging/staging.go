// Package staging holds community quote submissions until a moderator
// resolves them. Two backends exist: postgres (default) and redis.
package staging

import (
	"context"
	"errors"
	"time"
)

// AllLanguages is the wildcard listing scope spanning every language queue.
const AllLanguages = "all"

// ErrNotFound reports a pending quote id with no staged entry behind it.
var ErrNotFound = errors.New("pending quote not found")

// Store is the surface both backends implement. ListOldest returns entries
// in ascending submission order and treats AllLanguages as a wildcard.
type Store interface {
	CountPending(ctx context.Context, language string) (int, error)
	Insert(ctx context.Context, quote PendingQuote) error
	Get(ctx context.Context, id string) (PendingQuote, error)
	ListOldest(ctx context.Context, language string, limit int) ([]PendingQuote, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// PendingQuote is one staged submission awaiting approval or refusal.
// Approved stays false for the whole staged lifetime; the field exists for
// downstream consumers that filter on it.
type PendingQuote struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Source      string    `json:"source"`
	Language    string    `json:"language"`
	SubmittedBy string    `json:"submittedBy"`
	Timestamp   time.Time `json:"timestamp"`
	Approved    bool      `json:"approved"`
}
