package engine

import (
	"skoll/internal/common"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
)

type resting struct {
	order     *common.Order
	remaining *uint256.Int
}

// ProposeMatches sweeps the top of one (asset, kind) book while it crosses
// (i.e., bid >= ask), pairing orders in price-time priority. Nothing is
// settled: the proposals are what a fulfiller would submit, and each is
// revalidated when it is. At most limit matches are returned; zero means no
// limit.
//
// Pairs sharing an owner can never settle, so a bid passes over its own
// asks without consuming them; they stay on offer to later bids.
func (book *OrderBook) ProposeMatches(asset common.Address, kind common.Kind, limit int) []common.Match {
	idx, ok := book.index[indexKey{asset, kind}]
	if !ok {
		return nil
	}
	bids := book.side(idx, common.Buy)
	asks := book.side(idx, common.Sell)

	var out []common.Match
	// aIdx is the first ask with volume left. Bids move forward once filled
	// or once no ask they could take is left.
	var aIdx, bIdx int
	for aIdx < len(asks) && bIdx < len(bids) {
		if limit > 0 && len(out) == limit {
			break
		}
		bid := bids[bIdx]

		// If prices don't cross, we are done.
		if bid.order.Price.Lt(asks[aIdx].order.Price) {
			break
		}
		ask := nextAsk(asks[aIdx:], bid)
		if ask == nil {
			bIdx++
			continue
		}

		matchQty := fixed.Min(ask.remaining, bid.remaining)
		ask.remaining = new(uint256.Int).Sub(ask.remaining, matchQty)
		bid.remaining = new(uint256.Int).Sub(bid.remaining, matchQty)
		out = append(out, common.Match{BuyID: bid.order.ID, SellID: ask.order.ID, Fill: matchQty})

		// Move forward
		for aIdx < len(asks) && asks[aIdx].remaining.IsZero() {
			aIdx++
		}
		if bid.remaining.IsZero() {
			bIdx++
		}
	}
	return out
}

// nextAsk is the best ask bid can take: volume left, crossing, and from
// another owner.
func nextAsk(asks []*resting, bid *resting) *resting {
	for _, ask := range asks {
		if bid.order.Price.Lt(ask.order.Price) {
			return nil
		}
		if !ask.remaining.IsZero() && ask.order.Owner != bid.order.Owner {
			return ask
		}
	}
	return nil
}

// side lists the matchable orders of one side in priority order.
func (book *OrderBook) side(idx *priceIndex, side common.Side) []*resting {
	now := book.ledger.Now()
	var out []*resting
	idx.walk(side, func(id uint64) bool {
		order := book.orders[id]
		if order.Status == common.Active && !order.ExpiredAt(now) {
			out = append(out, &resting{order: order, remaining: order.Remaining()})
		}
		return true
	})
	return out
}
