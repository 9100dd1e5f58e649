package engine

import (
	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// FulfillLimit settles a batch of limit matches at each resting sell's
// price. The buyer is refunded the difference to its own price. Either
// every match settles or none does.
func (book *OrderBook) FulfillLimit(caller common.Address, matches []common.Match) ([]common.Settlement, error) {
	return book.fulfill(caller, common.Limit, matches, nil)
}

// FulfillMarket settles a batch of market matches, each at the execution
// price the fulfiller supplies for it. The price must lie within both
// orders' bounds.
func (book *OrderBook) FulfillMarket(caller common.Address, matches []common.Match, prices []*uint256.Int) ([]common.Settlement, error) {
	if len(prices) != len(matches) {
		return nil, common.ErrBatchMismatch
	}
	return book.fulfill(caller, common.Market, matches, prices)
}

func (book *OrderBook) fulfill(caller common.Address, kind common.Kind, matches []common.Match, prices []*uint256.Int) ([]common.Settlement, error) {
	if !book.registry.IsAuthorizedFulfiller(caller) {
		return nil, common.ErrNotFulfiller
	}
	if len(matches) == 0 {
		return nil, common.ErrEmptyBatch
	}

	settlements := make([]common.Settlement, 0, len(matches))
	err := book.call(func() error {
		for i, m := range matches {
			var exec *uint256.Int
			if kind == common.Market {
				exec = prices[i]
			}
			s, err := book.match(kind, m, exec)
			if err != nil {
				return errors.WithMessagef(err, "match %d (buy %d, sell %d)", i, m.BuyID, m.SellID)
			}
			settlements = append(settlements, s)
		}
		return nil
	})
	if err != nil {
		book.log.Debug().Err(err).Str("kind", kind.String()).Int("matches", len(matches)).Msg("batch rejected")
		return nil, err
	}
	return settlements, nil
}

// match checks one pair against each other and settles it.
func (book *OrderBook) match(kind common.Kind, m common.Match, exec *uint256.Int) (common.Settlement, error) {
	now := book.ledger.Now()
	buy, err := book.active(m.BuyID, now)
	if err != nil {
		return common.Settlement{}, err
	}
	sell, err := book.active(m.SellID, now)
	if err != nil {
		return common.Settlement{}, err
	}

	switch {
	case buy.Side != common.Buy || sell.Side != common.Sell:
		return common.Settlement{}, common.ErrSideMismatch
	case buy.Asset != sell.Asset:
		return common.Settlement{}, common.ErrAssetMismatch
	case buy.Owner == sell.Owner:
		return common.Settlement{}, common.ErrSelfMatch
	case buy.Kind != kind || sell.Kind != kind:
		return common.Settlement{}, common.ErrKindMismatch
	}

	requested := m.Fill
	if requested == nil {
		requested = fixed.Zero()
	}
	fill := fixed.Min3(requested, buy.Remaining(), sell.Remaining())
	if fill.IsZero() {
		return common.Settlement{}, common.ErrNothingToFill
	}

	var price *uint256.Int
	switch kind {
	case common.Limit:
		if buy.Price.Lt(sell.Price) {
			return common.Settlement{}, errors.Wrapf(common.ErrPriceMismatch,
				"bid %s below ask %s", buy.Price.Dec(), sell.Price.Dec())
		}
		price = sell.Price
	case common.Market:
		if exec == nil || exec.Lt(sell.Price) || exec.Gt(buy.Price) {
			return common.Settlement{}, errors.Wrapf(common.ErrPriceMismatch,
				"execution price outside [%s, %s]", sell.Price.Dec(), buy.Price.Dec())
		}
		price = exec
	}

	return book.settle(buy, sell, fill, price)
}

// settle executes fill units between a buy and a sell at price. Each side
// pays the fee on the notional: the seller out of its proceeds, the buyer
// out of the fee it escrowed. Whatever the buyer escrowed beyond that is
// refunded.
func (book *OrderBook) settle(buy, sell *common.Order, fill, price *uint256.Int) (common.Settlement, error) {
	notional, ok := fixed.CheckedNotional(fill, price)
	if !ok {
		return common.Settlement{}, common.ErrOverflow
	}
	fee := book.cfg.FeeBps.Of(notional)
	released, releasedFee := book.release(buy, fill)

	// The seller's fee stays with the book; the buyer's was credited when
	// the order was created, so only the excess of its escrowed fee leaves.
	book.addFee(fee)
	improvement := book.takeFee(fixed.SubFloor(releasedFee, fee))
	refund := new(uint256.Int).Add(fixed.SubFloor(released, notional), improvement)

	currency, self := book.cfg.Currency, book.Address()
	if err := book.ledger.Transfer(currency, self, sell.Owner, new(uint256.Int).Sub(notional, fee)); err != nil {
		return common.Settlement{}, err
	}
	if err := book.ledger.Transfer(buy.Asset, self, buy.Owner, fill); err != nil {
		return common.Settlement{}, err
	}
	if err := book.ledger.Transfer(currency, self, buy.Owner, refund); err != nil {
		return common.Settlement{}, err
	}

	book.ledger.Emit(events.Event{
		Kind:      events.TradeSettled,
		OrderID:   buy.ID,
		CounterID: sell.ID,
		Asset:     buy.Asset,
		OrderKind: buy.Kind,
		Amount:    fill.Clone(),
		Price:     price.Clone(),
		Value:     notional.Clone(),
		Fee:       new(uint256.Int).Mul(fee, uint256.NewInt(2)),
	})
	book.advance(buy, fill)
	book.advance(sell, fill)

	book.log.Debug().
		Uint64("buy", buy.ID).
		Uint64("sell", sell.ID).
		Str("fill", fill.Dec()).
		Str("price", price.Dec()).
		Msg("trade settled")

	return common.Settlement{
		BuyID:    buy.ID,
		SellID:   sell.ID,
		Asset:    buy.Asset,
		Fill:     fill.Clone(),
		Price:    price.Clone(),
		Notional: notional,
		Fee:      new(uint256.Int).Mul(fee, uint256.NewInt(2)),
	}, nil
}

// advance books fill more units against an order, closing it when the
// whole amount has executed.
func (book *OrderBook) advance(order *common.Order, fill *uint256.Int) {
	book.track(order)
	order.Filled = new(uint256.Int).Add(order.Filled, fill)

	kind := events.OrderPartiallyFilled
	if order.Filled.Eq(order.Amount) {
		kind = events.OrderFilled
		order.Status = common.Filled
		book.unindex(order)
	}

	book.ledger.Emit(events.Event{
		Kind:      kind,
		OrderID:   order.ID,
		Owner:     order.Owner,
		Asset:     order.Asset,
		Side:      order.Side,
		OrderKind: order.Kind,
		Amount:    fill.Clone(),
		Price:     order.Price.Clone(),
		Value:     order.Filled.Clone(),
	})
}
