package audit

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/domain"
)

type memStore struct {
	entries []domain.AuditEntry
}

func (m *memStore) Insert(ctx context.Context, entry domain.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) Last(ctx context.Context) (domain.AuditEntry, bool, error) {
	if len(m.entries) == 0 {
		return domain.AuditEntry{}, false, nil
	}
	return m.entries[len(m.entries)-1], true, nil
}

func TestWriteChainsPreviousHash(t *testing.T) {
	store := &memStore{}
	l, err := New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)

	e1, err := l.Write(context.Background(), domain.AuditEntry{EventType: "key_operation"})
	require.NoError(t, err)
	require.Empty(t, e1.PreviousEntryHash)

	e2, err := l.Write(context.Background(), domain.AuditEntry{EventType: "trade_submitted"})
	require.NoError(t, err)
	require.Equal(t, e1.EntryHash, e2.PreviousEntryHash)
}

func TestVerifyDetectsTamper(t *testing.T) {
	store := &memStore{}
	l, err := New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)

	entry, err := l.Write(context.Background(), domain.AuditEntry{EventType: "key_operation", UserID: "u1"})
	require.NoError(t, err)

	ok, err := Verify(entry)
	require.NoError(t, err)
	require.True(t, ok)

	entry.UserID = "attacker"
	ok, err = Verify(entry)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewResumesChainFromStore(t *testing.T) {
	store := &memStore{}
	l1, err := New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)
	first, err := l1.Write(context.Background(), domain.AuditEntry{EventType: "key_operation"})
	require.NoError(t, err)

	l2, err := New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)
	second, err := l2.Write(context.Background(), domain.AuditEntry{EventType: "trade_submitted"})
	require.NoError(t, err)

	require.Equal(t, first.EntryHash, second.PreviousEntryHash)
}
