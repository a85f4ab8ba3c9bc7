package hsm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/audit"
	"github.com/sawpanic/vaultrun/internal/config"
	"github.com/sawpanic/vaultrun/internal/domain"
)

type fakeDriver struct {
	sig []byte
	err error
}

func (f *fakeDriver) Provider() config.HSMProvider { return config.HSMHardware }
func (f *fakeDriver) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	return f.sig, f.err
}

type memAuditStore struct {
	entries []domain.AuditEntry
}

func (m *memAuditStore) Insert(ctx context.Context, entry domain.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}
func (m *memAuditStore) Last(ctx context.Context) (domain.AuditEntry, bool, error) {
	if len(m.entries) == 0 {
		return domain.AuditEntry{}, false, nil
	}
	return m.entries[len(m.entries)-1], true, nil
}

func TestSignReturnsSignatureAndLogsAudit(t *testing.T) {
	store := &memAuditStore{}
	auditl, err := audit.New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)

	s := New(&fakeDriver{sig: []byte("signature")}, auditl, zerolog.Nop())
	sig, err := s.Sign(context.Background(), "key-1", []byte("msg"))
	require.NoError(t, err)
	require.Equal(t, []byte("signature"), sig)

	require.Len(t, store.entries, 1)
	require.Equal(t, "key_operation", store.entries[0].EventType)
	require.Equal(t, domain.SeverityInfo, store.entries[0].Severity)
}

func TestSignLogsFailureAudit(t *testing.T) {
	store := &memAuditStore{}
	auditl, err := audit.New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)

	s := New(&fakeDriver{err: errors.New("hsm unreachable")}, auditl, zerolog.Nop())
	_, err = s.Sign(context.Background(), "key-1", []byte("msg"))
	require.Error(t, err)

	require.Len(t, store.entries, 1)
	require.Equal(t, domain.SeverityError, store.entries[0].Severity)
}
