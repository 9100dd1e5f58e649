package common

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Match pairs a resting buy with a resting sell. Fill is the volume the
// fulfiller asks for; the book settles min(Fill, buy remaining, sell
// remaining).
type Match struct {
	BuyID  uint64
	SellID uint64
	Fill   *uint256.Int
}

func (m Match) String() string {
	return fmt.Sprintf("buy=%d sell=%d fill=%s", m.BuyID, m.SellID, m.Fill.Dec())
}

// Settlement accounts for one executed fill, whichever path settled it.
type Settlement struct {
	BuyID    uint64       // Zero when the buy side was the pool or the fallback venue
	SellID   uint64       // Zero when the sell side was the pool or the fallback venue
	Asset    Address      //
	Fill     *uint256.Int // Asset volume moved
	Price    *uint256.Int // Settlement price
	Notional *uint256.Int // Currency moved at Price
	Fee      *uint256.Int // Total fee retained for this fill
}
