package engine

import (
	"skoll/internal/common"

	"github.com/holiman/uint256"
	"github.com/tidwall/btree"
)

type PriceLevel struct {
	price  *uint256.Int
	orders []uint64
}

type PriceLevels = btree.BTreeG[*PriceLevel]

// priceIndex keeps the active orders of one (asset, kind) book by price
// level, each level in time order. Settlement never reads it; it only
// backs the proposals handed to fulfillers.
type priceIndex struct {
	// Price levels to orders sat on the price level, sorted by time added
	// as they will be push-back'd.
	bids *PriceLevels
	asks *PriceLevels
}

func newPriceIndex() *priceIndex {
	// Sorted greatest first.
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.price.Gt(b.price)
	})
	// Sorted least first.
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.price.Lt(b.price)
	})
	return &priceIndex{bids: bids, asks: asks}
}

func (idx *priceIndex) levels(side common.Side) *PriceLevels {
	if side == common.Buy {
		return idx.bids
	}
	return idx.asks
}

// insert places id at position pos of its price level, or at the back when
// pos is out of range.
func (idx *priceIndex) insert(side common.Side, price *uint256.Int, id uint64, pos int) {
	levels := idx.levels(side)

	// Levels comparator only accounts for price levels, so we create a dummy
	// price level for the search.
	level, ok := levels.GetMut(&PriceLevel{price: price})
	if !ok {
		levels.Set(&PriceLevel{price: price.Clone(), orders: []uint64{id}})
		return
	}
	if pos < 0 || pos >= len(level.orders) {
		level.orders = append(level.orders, id)
		return
	}
	level.orders = append(level.orders, 0)
	copy(level.orders[pos+1:], level.orders[pos:])
	level.orders[pos] = id
}

// remove takes id off its price level and reports where it sat.
func (idx *priceIndex) remove(side common.Side, price *uint256.Int, id uint64) (int, bool) {
	levels := idx.levels(side)
	level, ok := levels.GetMut(&PriceLevel{price: price})
	if !ok {
		return 0, false
	}
	for i, other := range level.orders {
		if other != id {
			continue
		}
		level.orders = append(level.orders[:i], level.orders[i+1:]...)
		// Full consumption cases (i.e. empty levels).
		if len(level.orders) == 0 {
			levels.Delete(level)
		}
		return i, true
	}
	return 0, false
}

// walk visits the ids of one side in price-time priority until fn returns
// false.
func (idx *priceIndex) walk(side common.Side, fn func(id uint64) bool) {
	idx.levels(side).Scan(func(level *PriceLevel) bool {
		for _, id := range level.orders {
			if !fn(id) {
				return false
			}
		}
		return true
	})
}

// Depth is the number of price levels on each side.
func (idx *priceIndex) Depth() (bids, asks int) {
	return idx.bids.Len(), idx.asks.Len()
}
