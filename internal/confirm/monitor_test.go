package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/vaultrun/internal/domain"
)

func TestTrackDerivesRequirementFromUSDValue(t *testing.T) {
	m := New(nil, zerolog.Nop())
	tm := m.Track("sig1", time.Now(), 15000)
	require.Equal(t, 3, tm.Requirement.MinConfirmations)
	require.True(t, tm.Requirement.RequireFinalization)
}

func TestPollOneMarksConfirmedWhenThresholdMet(t *testing.T) {
	status := func(ctx context.Context, sig string) (ChainStatus, error) {
		return ChainStatus{Confirmations: 2}, nil
	}
	m := New(status, zerolog.Nop())
	submittedAt := time.Now().Add(-time.Second)
	m.Track("sig1", submittedAt, 500) // requires 1 confirmation, no finalization

	m.pollOne(context.Background(), "sig1", time.Now())
	tm, ok := m.Get("sig1")
	require.True(t, ok)
	require.Equal(t, domain.TxConfirmed, tm.State)
}

func TestPollOneMarksStuckWithZeroConfirmationsPastThreshold(t *testing.T) {
	status := func(ctx context.Context, sig string) (ChainStatus, error) {
		return ChainStatus{Confirmations: 0}, nil
	}
	m := New(status, zerolog.Nop())
	submittedAt := time.Now().Add(-200 * time.Second)
	m.Track("sig1", submittedAt, 500)

	m.pollOne(context.Background(), "sig1", time.Now())
	tm, ok := m.Get("sig1")
	require.True(t, ok)
	require.Equal(t, domain.TxStuck, tm.State)
}

func TestPollOneMarksTimeoutPastMaxWait(t *testing.T) {
	status := func(ctx context.Context, sig string) (ChainStatus, error) {
		return ChainStatus{Confirmations: 0}, nil
	}
	m := New(status, zerolog.Nop())
	submittedAt := time.Now().Add(-400 * time.Second)
	m.Track("sig1", submittedAt, 15000) // max wait 300s

	m.pollOne(context.Background(), "sig1", time.Now())
	tm, ok := m.Get("sig1")
	require.True(t, ok)
	require.Equal(t, domain.TxTimeout, tm.State)
}

func TestStrategyForClassifiesRetryActions(t *testing.T) {
	require.Equal(t, StrategyExponentialBackoff, StrategyFor(KindNetworkError))
	require.Equal(t, StrategyReplaceTransaction, StrategyFor(KindBlockhashExpired))
	require.Equal(t, StrategyLinearBackoff, StrategyFor(KindProgramError))
	require.Equal(t, StrategyNoRetry, StrategyFor(KindInsufficientFunds))
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	d := BackoffDelay(StrategyExponentialBackoff, 10)
	require.Equal(t, backoffMax, d)
}

func TestBackoffDelayDoublesPerRetry(t *testing.T) {
	d0 := BackoffDelay(StrategyExponentialBackoff, 0)
	d1 := BackoffDelay(StrategyExponentialBackoff, 1)
	require.Equal(t, backoffInitial, d0)
	require.Equal(t, backoffInitial*2, d1)
}
