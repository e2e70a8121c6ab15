package ledger

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Bounds on the amounts a record may carry.
const (
	MaxAmountScale         = 18
	MaxAmountIntegerDigits = 30
	maxAmountText          = 64
)

// ErrAmountRange is returned for amounts outside the bounds above.
var ErrAmountRange = errors.New("amount out of range")

// ParseAmount parses a decimal amount, refusing text that would expand into
// an unbounded number of digits (for example "1e400000000").
func ParseAmount(s string) (decimal.Decimal, error) {
	if len(s) > maxAmountText {
		return decimal.Decimal{}, errors.Wrapf(ErrAmountRange, "%d characters", len(s))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := CheckAmount(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// CheckAmount reports whether d has at most MaxAmountScale fractional digits
// and at most MaxAmountIntegerDigits integer digits.
func CheckAmount(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -MaxAmountScale {
		return errors.Wrapf(ErrAmountRange, "more than %d decimal places", MaxAmountScale)
	}
	digits := int64(len(strings.TrimPrefix(d.Coefficient().String(), "-")))
	if digits+exp > MaxAmountIntegerDigits {
		return errors.Wrapf(ErrAmountRange, "more than %d integer digits", MaxAmountIntegerDigits)
	}
	return nil
}
