// Package audit implements the append-only, hash-chained audit log of
// §4.18. Every component writes events through this logger; entries are
// never mutated or deleted.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sawpanic/vaultrun/internal/domain"
)

// Store persists audit entries and can return the most recently written
// one so the logger can chain against it after a restart.
type Store interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
	Last(ctx context.Context) (domain.AuditEntry, bool, error)
}

// Logger writes hash-chained audit entries.
type Logger struct {
	store Store
	log   zerolog.Logger

	mu   sync.Mutex
	prev string
}

// New constructs a Logger, loading the previous chain tip from the store
// so new entries link correctly after a restart.
func New(ctx context.Context, store Store, log zerolog.Logger) (*Logger, error) {
	l := &Logger{store: store, log: log.With().Str("component", "audit_log").Logger()}

	last, ok, err := store.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: load chain tip: %w", err)
	}
	if ok {
		l.prev = last.EntryHash
	}
	return l, nil
}

// Write appends one entry to the chain, computing its entry_hash over
// the canonical JSON of the entry without the hash field and stamping
// previous_entry_hash from the in-memory chain tip.
func (l *Logger) Write(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.PreviousEntryHash = l.prev
	entry.EntryHash = ""

	hash, err := computeHash(entry)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit: hash entry: %w", err)
	}
	entry.EntryHash = hash

	if err := l.store.Insert(ctx, entry); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit: insert: %w", err)
	}

	l.prev = entry.EntryHash
	return entry, nil
}

// Writable reports whether the underlying store can currently be read
// from, used by the gateway's health endpoint as a writability proxy.
func (l *Logger) Writable(ctx context.Context) bool {
	_, _, err := l.store.Last(ctx)
	return err == nil
}

// Verify recomputes an entry's hash and reports whether it matches the
// stored EntryHash, detecting tampering.
func Verify(entry domain.AuditEntry) (bool, error) {
	want := entry.EntryHash
	entry.EntryHash = ""
	got, err := computeHash(entry)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func computeHash(entry domain.AuditEntry) (string, error) {
	canonical, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
