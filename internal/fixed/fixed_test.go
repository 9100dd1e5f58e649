package fixed

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), PriceScale)
}

func TestNotional(t *testing.T) {
	price := uint256.NewInt(1_500_000_000_000_000_000) // 1.5
	assert.Equal(t, units(150), Notional(units(100), price))

	// One base unit at 1.5 rounds down to one.
	assert.Equal(t, uint256.NewInt(1), Notional(uint256.NewInt(1), price))
}

func TestBpsRoundsDown(t *testing.T) {
	fee := Bps(50)
	assert.Equal(t, uint256.NewInt(750_000_000_000_000_000), fee.Of(units(150)))
	assert.Equal(t, uint256.NewInt(0), fee.Of(uint256.NewInt(199)))
	assert.Equal(t, uint256.NewInt(1), fee.Of(uint256.NewInt(200)))
	assert.Equal(t, "0.50%", fee.String())
	assert.True(t, Bps(10_000).Valid())
	assert.False(t, Bps(10_001).Valid())
}

func TestMulDivReportsOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, ok := MulDiv(max, uint256.NewInt(2), uint256.NewInt(1))
	assert.False(t, ok)

	_, ok = MulDiv(uint256.NewInt(1), uint256.NewInt(1), Zero())
	assert.False(t, ok)

	z, ok := MulDiv(max, max, max)
	assert.True(t, ok)
	assert.Equal(t, max, z)
}

func TestCheckedAdd(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, ok := CheckedAdd(max, uint256.NewInt(1))
	assert.False(t, ok)

	z, ok := CheckedAdd(uint256.NewInt(2), uint256.NewInt(3))
	assert.True(t, ok)
	assert.Equal(t, uint256.NewInt(5), z)
}

func TestSubFloorAndMin(t *testing.T) {
	assert.Equal(t, Zero(), SubFloor(uint256.NewInt(1), uint256.NewInt(2)))
	assert.Equal(t, uint256.NewInt(1), SubFloor(uint256.NewInt(3), uint256.NewInt(2)))
	assert.Equal(t, uint256.NewInt(2), Min3(uint256.NewInt(5), uint256.NewInt(2), uint256.NewInt(9)))
}
