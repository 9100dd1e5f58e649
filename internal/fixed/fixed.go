// Package fixed holds the fixed-point arithmetic shared by the book and the
// pool. All values are unsigned 256-bit integers; every helper multiplies
// before dividing so a single operation loses less than one unit.
package fixed

import (
	"github.com/holiman/uint256"
)

var (
	// PriceScale is one whole asset unit: prices are currency base units
	// per 1e18 asset base units.
	PriceScale = uint256.NewInt(1_000_000_000_000_000_000)

	// RewardScale is the precision of reward-per-share accumulators.
	RewardScale = uint256.NewInt(1_000_000_000_000_000_000)
)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// MulDiv returns floor(x*y/d) with a 512-bit intermediate, and false when d
// is zero or the quotient does not fit 256 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, bool) {
	if d.IsZero() {
		return Zero(), false
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	return z, !overflow
}

// MustMulDiv is MulDiv for operands already bounded by validation. It
// panics on a zero divisor or an overflowing quotient.
func MustMulDiv(x, y, d *uint256.Int) *uint256.Int {
	z, ok := MulDiv(x, y, d)
	if !ok {
		panic("fixed: muldiv out of range")
	}
	return z
}

// Notional is the currency value of amount at price, rounded down.
func Notional(amount, price *uint256.Int) *uint256.Int {
	return MustMulDiv(amount, price, PriceScale)
}

// CheckedNotional is Notional reporting overflow instead of panicking.
func CheckedNotional(amount, price *uint256.Int) (*uint256.Int, bool) {
	return MulDiv(amount, price, PriceScale)
}

// Min returns a copy of the smaller operand.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Min3 returns a copy of the smallest operand.
func Min3(a, b, c *uint256.Int) *uint256.Int {
	return Min(Min(a, b), c)
}

// SubFloor returns a-b, or zero when b exceeds a.
func SubFloor(a, b *uint256.Int) *uint256.Int {
	if b.Gt(a) {
		return Zero()
	}
	return new(uint256.Int).Sub(a, b)
}

// CheckedAdd returns a+b and false on overflow. Accumulators use it so a
// wrapped value is never stored.
func CheckedAdd(a, b *uint256.Int) (*uint256.Int, bool) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	return z, !overflow
}
