package fixed

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Decimals is the number of decimals of every base-unit amount.
const Decimals = 18

var ErrBadAmount = errors.New("bad amount")

// ToDecimal converts base units to whole units without loss.
func ToDecimal(amount *uint256.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -Decimals)
}

// Format renders base units as a whole-unit decimal string.
func Format(amount *uint256.Int) string {
	return ToDecimal(amount).String()
}

// Parse reads a whole-unit decimal such as "1.5" into base units. More
// than Decimals fractional digits, negative values and values beyond 256
// bits are rejected.
func Parse(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrBadAmount, "%q", s)
	}
	if d.IsNegative() {
		return nil, errors.Wrapf(ErrBadAmount, "%q is negative", s)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Wrapf(ErrBadAmount, "%q has more than %d decimals", s, Decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, errors.Wrapf(ErrBadAmount, "%q overflows", s)
	}
	return out, nil
}

// ParseBase reads a base-unit integer string.
func ParseBase(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, errors.Wrapf(ErrBadAmount, "%q", s)
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, errors.Wrapf(ErrBadAmount, "%q overflows", s)
	}
	return out, nil
}
