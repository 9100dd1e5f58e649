package fixed

import (
	"fmt"

	"github.com/holiman/uint256"
)

// BpsDenominator is 100%.
const BpsDenominator = 10_000

var bpsDenominator = uint256.NewInt(BpsDenominator)

// Bps is a fraction in basis points, 1/100 of one percent.
type Bps uint16

// Valid reports whether b is at most 100%.
func (b Bps) Valid() bool {
	return b <= BpsDenominator
}

// Of returns floor(x*b/10000). Fees and withdrawal fractions both round
// down: the trader keeps the dust on fees, the pool keeps it on
// withdrawals.
func (b Bps) Of(x *uint256.Int) *uint256.Int {
	return MustMulDiv(x, uint256.NewInt(uint64(b)), bpsDenominator)
}

// CheckedOf is Of reporting overflow.
func (b Bps) CheckedOf(x *uint256.Int) (*uint256.Int, bool) {
	return MulDiv(x, uint256.NewInt(uint64(b)), bpsDenominator)
}

func (b Bps) String() string {
	return fmt.Sprintf("%d.%02d%%", b/100, b%100)
}
