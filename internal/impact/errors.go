package impact

import "errors"

// Impact engine errors. Error codes recorded on failed requests map onto
// these sentinels via Code.
var (
	// ErrModelNotFound is returned when no active model matches a
	// (name, version) lookup, or dispatch hits an unknown model name.
	ErrModelNotFound = errors.New("impact model not found")

	// ErrInvalidModelParams is returned at resolve time when a model's
	// parameter set is missing required coefficients or holds out-of-range
	// values. Compute assumes validated params and never re-checks.
	ErrInvalidModelParams = errors.New("invalid impact model params")

	// ErrInvalidLiquidity is returned when ADV is non-positive.
	ErrInvalidLiquidity = errors.New("invalid liquidity: ADV must be positive")

	// ErrInvalidTradeInput is returned when shares, price or notional are
	// non-positive.
	ErrInvalidTradeInput = errors.New("invalid trade input: must be positive")
)

// Error taxonomy codes persisted on failed requests.
const (
	CodeModelNotFound      = "ModelNotFound"
	CodeInvalidModelParams = "InvalidModelParams"
	CodeInvalidLiquidity   = "InvalidLiquidity"
	CodeInvalidTradeInput  = "InvalidTradeInput"
)

// Code maps an impact error to its taxonomy code, or "" for other errors.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrModelNotFound):
		return CodeModelNotFound
	case errors.Is(err, ErrInvalidModelParams):
		return CodeInvalidModelParams
	case errors.Is(err, ErrInvalidLiquidity):
		return CodeInvalidLiquidity
	case errors.Is(err, ErrInvalidTradeInput):
		return CodeInvalidTradeInput
	default:
		return ""
	}
}
