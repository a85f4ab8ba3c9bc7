package parser

import (
	"fmt"

	"github.com/sawpanic/vaultrun/internal/apperrors"
)

func errInvalidAmount(signature string) error {
	return fmt.Errorf("%w: swap %s amount exceeds maximum reasonable token amount", apperrors.ErrValidation, signature)
}

func errUnsupportedMint(signature string) error {
	return fmt.Errorf("%w: swap %s references an unsupported mint", apperrors.ErrValidation, signature)
}

func errBelowMinTradeValue(signature string) error {
	return fmt.Errorf("%w: swap %s trade value below minimum", apperrors.ErrDataQuality, signature)
}
