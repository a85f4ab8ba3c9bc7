// Package parser extracts swap semantics from raw getTransaction payloads
// (§4.2), diffing pre/post token balances grouped by owner.
package parser

// RawTransaction is the subset of a jsonParsed getTransaction response the
// parser needs. It mirrors the Solana RPC wire shape closely enough to
// parse real payloads while staying a strict, boundary-typed struct
// (§9 "from dynamic to structural typing") instead of a generic map.
type RawTransaction struct {
	Meta        TxMeta        `json:"meta"`
	Transaction TxBody        `json:"transaction"`
}

type TxMeta struct {
	Err              any               `json:"err"`
	Fee              uint64            `json:"fee"`
	PreTokenBalances  []TokenBalance    `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance    `json:"postTokenBalances"`
}

type TokenBalance struct {
	AccountIndex int        `json:"accountIndex"`
	Owner        string     `json:"owner"`
	Mint         string     `json:"mint"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

type UITokenAmount struct {
	Amount   string `json:"amount"` // raw integer string, base units
	Decimals int    `json:"decimals"`
}

type TxBody struct {
	Message Message `json:"message"`
}

type Message struct {
	Instructions []Instruction `json:"instructions"`
	AccountKeys  []string      `json:"accountKeys"`
}

type Instruction struct {
	ProgramID string            `json:"programId"`
	Accounts  []string          `json:"accounts"`
	Parsed    *ParsedInstruction `json:"parsed,omitempty"`
}

type ParsedInstruction struct {
	Type string `json:"type"`
}

// KnownAMMProgramIDs are the AMM program ids the parser recognizes,
// configurable via config.ProgramIDs.
type KnownAMMProgramIDs struct {
	Raydium string
	Jupiter string
	Orca    string
	Serum   string
}

// Set returns the non-empty program ids as a lookup set.
func (k KnownAMMProgramIDs) Set() map[string]bool {
	out := map[string]bool{}
	for _, id := range []string{k.Raydium, k.Jupiter, k.Orca, k.Serum} {
		if id != "" {
			out[id] = true
		}
	}
	return out
}
