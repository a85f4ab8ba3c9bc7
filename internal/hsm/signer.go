// Package hsm provides the abstract HSM-mediated signer of §4.13. Private
// key material never leaves the backing HSM; each provider driver only
// exchanges opaque messages and signatures with its remote key service.
package hsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/vaultrun/internal/audit"
	"github.com/sawpanic/vaultrun/internal/config"
	"github.com/sawpanic/vaultrun/internal/domain"
)

// ErrConnection means the signer could not reach the backing HSM at all
// (network/auth failure), as distinct from the HSM rejecting the sign.
var ErrConnection = errors.New("hsm: connection error")

// ErrSigning means the HSM was reachable but refused or failed to
// produce a signature.
var ErrSigning = errors.New("hsm: signing error")

// Driver is a provider-specific signing backend. Implementations never
// hold private key material in process memory.
type Driver interface {
	Provider() config.HSMProvider
	Sign(ctx context.Context, keyID string, message []byte) (signature []byte, err error)
}

// Signer wraps a Driver with the §4.13 audit contract: every call
// produces a key_operation audit entry with the operation type, key
// identifier (never material), success, and duration.
type Signer struct {
	driver Driver
	auditl *audit.Logger
	log    zerolog.Logger
}

// New constructs a Signer around driver.
func New(driver Driver, auditl *audit.Logger, log zerolog.Logger) *Signer {
	return &Signer{driver: driver, auditl: auditl, log: log.With().Str("component", "hsm_signer").Str("provider", string(driver.Provider())).Logger()}
}

// Sign authorizes and performs one signing operation, logging an audit
// entry regardless of outcome.
func (s *Signer) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	start := time.Now()
	sig, err := s.driver.Sign(ctx, keyID, message)
	duration := time.Since(start)

	s.writeAudit(ctx, keyID, err == nil, duration, err)

	if err != nil {
		return nil, fmt.Errorf("hsm: sign with key %s: %w", keyID, err)
	}
	return sig, nil
}

func (s *Signer) writeAudit(ctx context.Context, keyID string, success bool, duration time.Duration, signErr error) {
	if s.auditl == nil {
		return
	}
	severity := domain.SeverityInfo
	errMsg := ""
	if !success {
		severity = domain.SeverityError
		errMsg = signErr.Error()
	}

	_, err := s.auditl.Write(ctx, domain.AuditEntry{
		EventType: "key_operation",
		Severity:  severity,
		Error:     errMsg,
		EventData: map[string]any{
			"provider":    string(s.driver.Provider()),
			"key_id":      keyID,
			"success":     success,
			"duration_ms": duration.Milliseconds(),
		},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to write key_operation audit entry")
	}
}
