package fixed

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want *uint256.Int
	}{
		{"1", uint256.NewInt(1_000_000_000_000_000_000)},
		{"1.5", uint256.NewInt(1_500_000_000_000_000_000)},
		{"0.000000000000000001", uint256.NewInt(1)},
		{"0", uint256.NewInt(0)},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "abc", "-1", "0.0000000000000000001"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrBadAmount, bad)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.5", Format(uint256.NewInt(1_500_000_000_000_000_000)))
	assert.Equal(t, "0", Format(nil))
	assert.Equal(t, "0.000000000000000001", Format(uint256.NewInt(1)))
}

func TestParseBase(t *testing.T) {
	got, err := ParseBase("12345")
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(12345), got)

	_, err = ParseBase("-3")
	assert.ErrorIs(t, err, ErrBadAmount)
	_, err = ParseBase("1.0")
	assert.ErrorIs(t, err, ErrBadAmount)
}
