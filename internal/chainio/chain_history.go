package chainio

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/vaultrun/internal/ingestion"
	"github.com/sawpanic/vaultrun/internal/parser"
	"github.com/sawpanic/vaultrun/internal/rpc"
)

// SolanaChainHistory implements ingestion.Chain against the raw
// getSignaturesForAddress/getTransaction JSON-RPC methods.
type SolanaChainHistory struct {
	client *rpc.Client
}

// NewSolanaChainHistory constructs a SolanaChainHistory.
func NewSolanaChainHistory(client *rpc.Client) *SolanaChainHistory {
	return &SolanaChainHistory{client: client}
}

type signatureEntry struct {
	Signature string `json:"signature"`
	BlockTime int64  `json:"blockTime"`
	Slot      uint64 `json:"slot"`
}

// GetSignaturesForAddress implements ingestion.Chain.
func (s *SolanaChainHistory) GetSignaturesForAddress(ctx context.Context, wallet string, before string, limit int) ([]ingestion.SignatureInfo, error) {
	opts := map[string]any{"limit": limit}
	if before != "" {
		opts["before"] = before
	}

	var entries []signatureEntry
	if err := s.client.Call(ctx, "getSignaturesForAddress", []any{wallet, opts}, &entries); err != nil {
		return nil, fmt.Errorf("chainio: get signatures for address: %w", err)
	}

	out := make([]ingestion.SignatureInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, ingestion.SignatureInfo{
			Signature: e.Signature,
			BlockTime: time.Unix(e.BlockTime, 0).UTC(),
			Slot:      e.Slot,
		})
	}
	return out, nil
}

// GetTransaction implements ingestion.Chain.
func (s *SolanaChainHistory) GetTransaction(ctx context.Context, signature string) (*parser.RawTransaction, error) {
	opts := map[string]any{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0}

	var tx parser.RawTransaction
	if err := s.client.Call(ctx, "getTransaction", []any{signature, opts}, &tx); err != nil {
		return nil, fmt.Errorf("chainio: get transaction %s: %w", signature, err)
	}
	return &tx, nil
}
