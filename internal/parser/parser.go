package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/vaultrun/internal/domain"
)

const maxReasonableTokenAmount = 1_000_000_000 // 10^9 tokens, §4.2 validation

// Parser extracts a domain.Swap from a raw transaction for one expected
// wallet.
type Parser struct {
	programIDs KnownAMMProgramIDs
	log        zerolog.Logger
}

// New constructs a Parser scoped to the configured AMM program ids.
func New(programIDs KnownAMMProgramIDs, log zerolog.Logger) *Parser {
	return &Parser{programIDs: programIDs, log: log.With().Str("component", "parser").Logger()}
}

// delta is a per-owner, per-mint signed balance change.
type delta struct {
	mint     string
	decimals int
	amount   decimal.Decimal // signed: negative = outflow, positive = inflow
}

// Parse implements the §4.2 algorithm. Returns (nil, nil) — not an error —
// for any of the documented "reject silently with a warning" cases.
func (p *Parser) Parse(tx RawTransaction, signature, wallet string, blockTime time.Time, slot uint64) (*domain.Swap, error) {
	ammSet := p.programIDs.Set()
	programID, ok := firstMatchingProgram(tx.Transaction.Message.Instructions, ammSet)
	if !ok {
		p.log.Debug().Str("signature", signature).Msg("no known AMM program instruction; rejected")
		return nil, nil
	}

	deltas := diffBalances(tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances, wallet)
	if len(deltas) < 2 {
		p.log.Warn().Str("signature", signature).Int("deltas", len(deltas)).Msg("fewer than 2 non-zero deltas for wallet")
		return nil, nil
	}

	var inLeg, outLeg *delta
	for i := range deltas {
		d := deltas[i]
		switch {
		case d.amount.IsNegative() && inLeg == nil:
			inLeg = &deltas[i]
		case d.amount.IsPositive() && outLeg == nil:
			outLeg = &deltas[i]
		}
	}
	if inLeg == nil || outLeg == nil {
		p.log.Warn().Str("signature", signature).Msg("could not identify both in/out legs")
		return nil, nil
	}
	if inLeg.mint == outLeg.mint {
		p.log.Warn().Str("signature", signature).Msg("identical in/out mint")
		return nil, nil
	}

	status := domain.SwapStatusSuccess
	if tx.Meta.Err != nil {
		status = domain.SwapStatusFailed
	}

	poolID := ""
	for _, instr := range tx.Transaction.Message.Instructions {
		if ammSet[instr.ProgramID] && len(instr.Accounts) > 0 {
			poolID = instr.Accounts[0]
			break
		}
	}

	swap := &domain.Swap{
		Signature:   signature,
		Wallet:      wallet,
		BlockTime:   blockTime.UTC(),
		Slot:        slot,
		Status:      status,
		Variant:     classifyVariant(tx.Transaction.Message.Instructions, ammSet),
		TokenIn:     domain.TokenLeg{Mint: inLeg.mint, Decimals: inLeg.decimals, Amount: inLeg.amount.Abs()},
		TokenOut:    domain.TokenLeg{Mint: outLeg.mint, Decimals: outLeg.decimals, Amount: outLeg.amount},
		PoolID:      poolID,
		ProgramID:   programID,
		FeeLamports: tx.Meta.Fee,
		ParsingSource: "jsonParsed",
	}

	return swap, nil
}

// ValidateSwap applies the §4.2 validation rules beyond basic parsing.
func ValidateSwap(s domain.Swap, minTradeValueUSD decimal.Decimal, supportedMints map[string]bool) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.TokenIn.Amount.GreaterThan(decimal.NewFromInt(maxReasonableTokenAmount)) ||
		s.TokenOut.Amount.GreaterThan(decimal.NewFromInt(maxReasonableTokenAmount)) {
		return errInvalidAmount(s.Signature)
	}
	if len(supportedMints) > 0 {
		if !supportedMints[s.TokenIn.Mint] || !supportedMints[s.TokenOut.Mint] {
			return errUnsupportedMint(s.Signature)
		}
	}
	if s.TokenIn.USD.Valid && s.TokenIn.USD.Decimal.LessThan(minTradeValueUSD) {
		return errBelowMinTradeValue(s.Signature)
	}
	return nil
}

func firstMatchingProgram(instructions []Instruction, ammSet map[string]bool) (string, bool) {
	for _, instr := range instructions {
		if ammSet[instr.ProgramID] {
			return instr.ProgramID, true
		}
	}
	return "", false
}

func classifyVariant(instructions []Instruction, ammSet map[string]bool) domain.SwapVariant {
	for _, instr := range instructions {
		if !ammSet[instr.ProgramID] || instr.Parsed == nil {
			continue
		}
		t := strings.ToLower(instr.Parsed.Type)
		switch {
		case strings.Contains(t, "swapbasein"):
			return domain.SwapVariantIn
		case strings.Contains(t, "swapbaseout"):
			return domain.SwapVariantOut
		case strings.Contains(t, "swap"):
			return domain.SwapVariantGeneric
		}
	}
	return domain.SwapVariantUnknown
}

// diffBalances groups pre/post token balances by owner and returns the
// non-zero deltas for wallet.
func diffBalances(pre, post []TokenBalance, wallet string) []delta {
	preByMint := map[string]UITokenAmount{}
	for _, b := range pre {
		if b.Owner == wallet {
			preByMint[b.Mint] = b.UITokenAmount
		}
	}
	postByMint := map[string]UITokenAmount{}
	for _, b := range post {
		if b.Owner == wallet {
			postByMint[b.Mint] = b.UITokenAmount
		}
	}

	mints := map[string]bool{}
	for m := range preByMint {
		mints[m] = true
	}
	for m := range postByMint {
		mints[m] = true
	}

	var out []delta
	for mint := range mints {
		preAmt, preOK := preByMint[mint]
		postAmt, postOK := postByMint[mint]
		if !preOK || !postOK {
			continue // missing pre- or post-balance: drop, per §4.2 edge cases
		}

		preDec, err1 := parseRawAmount(preAmt)
		postDec, err2 := parseRawAmount(postAmt)
		if err1 != nil || err2 != nil {
			continue // unknown decimals / unparseable amount
		}

		d := postDec.Sub(preDec)
		if d.IsZero() {
			continue
		}
		out = append(out, delta{mint: mint, decimals: postAmt.Decimals, amount: d})
	}
	return out
}

func parseRawAmount(a UITokenAmount) (decimal.Decimal, error) {
	raw, err := strconv.ParseInt(a.Amount, 10, 64)
	if err != nil {
		return decimal.Decimal{}, err
	}
	scale := decimal.New(1, int32(a.Decimals))
	return decimal.NewFromInt(raw).Div(scale), nil
}
