package chainio

import (
	"context"
	"fmt"

	"github.com/sawpanic/vaultrun/internal/confirm"
	"github.com/sawpanic/vaultrun/internal/rpc"
)

// TransactionIO wraps an rpc.Client with the three raw Solana calls the
// executor's state machine needs around a built swap transaction:
// a recent blockhash, a dry-run simulation, and submission.
type TransactionIO struct {
	client *rpc.Client
}

// NewTransactionIO constructs a TransactionIO.
func NewTransactionIO(client *rpc.Client) *TransactionIO {
	return &TransactionIO{client: client}
}

type blockhashResult struct {
	Value struct {
		Blockhash string `json:"blockhash"`
	} `json:"value"`
}

// Blockhash implements executor.BlockhashFunc.
func (t *TransactionIO) Blockhash(ctx context.Context) (string, error) {
	var result blockhashResult
	if err := t.client.Call(ctx, "getLatestBlockhash", []any{map[string]string{"commitment": "confirmed"}}, &result); err != nil {
		return "", fmt.Errorf("chainio: get latest blockhash: %w", err)
	}
	return result.Value.Blockhash, nil
}

type simulateResult struct {
	Value struct {
		Err any `json:"err"`
	} `json:"value"`
}

// Simulate implements executor.Simulator.
func (t *TransactionIO) Simulate(ctx context.Context, txB64 string) error {
	var result simulateResult
	params := []any{txB64, map[string]any{"encoding": "base64", "commitment": "confirmed"}}
	if err := t.client.Call(ctx, "simulateTransaction", params, &result); err != nil {
		return fmt.Errorf("chainio: simulate transaction: %w", err)
	}
	if result.Value.Err != nil {
		return fmt.Errorf("chainio: transaction simulation failed: %v", result.Value.Err)
	}
	return nil
}

// Submit implements executor.Submitter.
func (t *TransactionIO) Submit(ctx context.Context, signedTxB64 string) (string, error) {
	var signature string
	params := []any{signedTxB64, map[string]any{"encoding": "base64"}}
	if err := t.client.Call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", fmt.Errorf("chainio: submit transaction: %w", err)
	}
	return signature, nil
}

type signatureStatusResult struct {
	Value []*struct {
		Confirmations     *int   `json:"confirmations"`
		ConfirmationStatus string `json:"confirmationStatus"`
		Slot               uint64 `json:"slot"`
		Err                any    `json:"err"`
	} `json:"value"`
}

// ConfirmationStatus implements confirm.StatusFunc via getSignatureStatuses.
func (t *TransactionIO) ConfirmationStatus(ctx context.Context, signature string) (confirm.ChainStatus, error) {
	var result signatureStatusResult
	params := []any{[]string{signature}, map[string]bool{"searchTransactionHistory": true}}
	if err := t.client.Call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return confirm.ChainStatus{}, fmt.Errorf("chainio: get signature statuses: %w", err)
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return confirm.ChainStatus{}, nil
	}

	v := result.Value[0]
	status := confirm.ChainStatus{BlockHeight: v.Slot}
	if v.Confirmations != nil {
		status.Confirmations = *v.Confirmations
	}
	if v.ConfirmationStatus == "finalized" {
		status.Finalized = true
	}
	if v.Err != nil {
		status.Failed = true
		status.ErrorKind = confirm.KindUnknown
	}
	return status, nil
}
