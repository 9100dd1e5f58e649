package engine

import (
	"context"

	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// FulfillWithPool settles each order against the liquidity pool at the
// order's own price: a buy takes inventory from the asset compartment, a
// sell is paid out of the currency compartment. A share of every fee
// collected is forwarded to the currency compartment's providers.
func (book *OrderBook) FulfillWithPool(caller common.Address, ids []uint64, fills []*uint256.Int) ([]common.Settlement, error) {
	if !book.registry.IsAuthorizedFulfiller(caller) {
		return nil, common.ErrNotFulfiller
	}
	if len(ids) == 0 {
		return nil, common.ErrEmptyBatch
	}
	if len(fills) != len(ids) {
		return nil, common.ErrBatchMismatch
	}

	settlements := make([]common.Settlement, 0, len(ids))
	err := book.call(func() error {
		for i, id := range ids {
			s, err := book.settleWithPool(id, fills[i])
			if err != nil {
				return errors.WithMessagef(err, "order %d", id)
			}
			settlements = append(settlements, s)
		}
		return nil
	})
	if err != nil {
		book.log.Debug().Err(err).Int("orders", len(ids)).Msg("pool batch rejected")
		return nil, err
	}
	return settlements, nil
}

func (book *OrderBook) settleWithPool(id uint64, requested *uint256.Int) (common.Settlement, error) {
	order, err := book.active(id, book.ledger.Now())
	if err != nil {
		return common.Settlement{}, err
	}
	if requested == nil {
		requested = fixed.Zero()
	}
	fill := fixed.Min(requested, order.Remaining())
	if fill.IsZero() {
		return common.Settlement{}, common.ErrNothingToFill
	}

	currency, self := book.cfg.Currency, book.Address()
	notional, ok := fixed.CheckedNotional(fill, order.Price)
	if !ok {
		return common.Settlement{}, common.ErrOverflow
	}
	fee := book.cfg.FeeBps.Of(notional)
	s := common.Settlement{
		Asset:    order.Asset,
		Fill:     fill.Clone(),
		Price:    order.Price.Clone(),
		Notional: notional,
		Fee:      fee,
	}

	switch order.Side {
	case common.Buy:
		// The taker fee comes out of the escrowed fee, the rest of which
		// goes back along with any rounding surplus of the notional.
		released, releasedFee := book.release(order, fill)
		if err := book.pool.ExecuteBuy(self, order.Asset, fill, notional); err != nil {
			return common.Settlement{}, err
		}
		if err := book.ledger.Transfer(order.Asset, self, order.Owner, fill); err != nil {
			return common.Settlement{}, err
		}
		improvement := book.takeFee(fixed.SubFloor(releasedFee, fee))
		refund := new(uint256.Int).Add(fixed.SubFloor(released, notional), improvement)
		if err := book.ledger.Transfer(currency, self, order.Owner, refund); err != nil {
			return common.Settlement{}, err
		}
		s.BuyID = order.ID
	case common.Sell:
		if err := book.pool.ExecuteSell(self, order.Asset, fill, notional); err != nil {
			return common.Settlement{}, err
		}
		if err := book.ledger.Transfer(currency, self, order.Owner, new(uint256.Int).Sub(notional, fee)); err != nil {
			return common.Settlement{}, err
		}
		book.addFee(fee)
		s.SellID = order.ID
	}

	if err := book.forwardReward(order.Asset, fee); err != nil {
		return common.Settlement{}, err
	}

	book.ledger.Emit(events.Event{
		Kind:      events.TradeSettled,
		OrderID:   order.ID,
		Owner:     order.Owner,
		Asset:     order.Asset,
		Side:      order.Side,
		OrderKind: order.Kind,
		Amount:    fill.Clone(),
		Price:     order.Price.Clone(),
		Value:     notional.Clone(),
		Fee:       fee.Clone(),
	})
	book.advance(order, fill)
	return s, nil
}

// forwardReward moves the reward split of fee from the fee ledger to the
// current epoch of the asset's currency compartment. An epoch nobody holds
// shares in gets nothing.
func (book *OrderBook) forwardReward(asset common.Address, fee *uint256.Int) error {
	share := book.cfg.RewardSplitBps.Of(fee)
	share = fixed.Min(share, book.fees)
	if share.IsZero() {
		return nil
	}

	epoch := book.pool.CurrentEpoch(asset, common.CurrencyCompartment)
	err := book.pool.DistributeFee(book.Address(), asset, epoch, common.CurrencyCompartment, share)
	if errors.Is(err, common.ErrNoShares) {
		return nil
	}
	if err != nil {
		return err
	}
	book.takeFee(share)
	return nil
}

// FulfillOwnWithFallback lets an owner route part of its own order through
// the fallback venue. A buy spends the escrow released for fill units, a
// sell spends fill units of escrowed asset; proceeds are what actually
// arrived at the book, and less than minOut fails the call.
func (book *OrderBook) FulfillOwnWithFallback(ctx context.Context, caller common.Address, id uint64, fill, minOut *uint256.Int) (common.Settlement, error) {
	if book.fallback == nil {
		return common.Settlement{}, errors.Wrap(common.ErrFallbackFailed, "no fallback venue")
	}

	var s common.Settlement
	err := book.call(func() error {
		order, ok := book.orders[id]
		if !ok {
			return common.ErrOrderNotFound
		}
		if order.Owner != caller {
			return common.ErrNotOwner
		}
		if _, err := book.active(id, book.ledger.Now()); err != nil {
			return err
		}
		if fill == nil {
			fill = fixed.Zero()
		}
		fill = fixed.Min(fill, order.Remaining())
		if fill.IsZero() {
			return common.ErrNothingToFill
		}

		var err error
		s, err = book.settleWithFallback(ctx, order, fill, minOut)
		return err
	})
	if err != nil {
		book.log.Debug().Err(err).Uint64("id", id).Msg("fallback fill rejected")
		return common.Settlement{}, err
	}
	return s, nil
}

func (book *OrderBook) settleWithFallback(ctx context.Context, order *common.Order, fill, minOut *uint256.Int) (common.Settlement, error) {
	currency, self := book.cfg.Currency, book.Address()
	venue := book.fallback.Address()

	spent, received := currency, order.Asset
	amount, fee := fill, fixed.Zero()
	if order.Side == common.Buy {
		amount, fee = book.release(order, fill)
	} else {
		spent, received = order.Asset, currency
	}

	if err := book.ledger.Transfer(spent, self, venue, amount); err != nil {
		return common.Settlement{}, err
	}
	before := book.ledger.BalanceOf(received, self)
	reported, err := book.fallback.ExecuteTrade(ctx, order.Asset, amount, minOut, order.Side == common.Buy)
	if err != nil {
		return common.Settlement{}, errors.WithMessage(err, "fallback venue")
	}
	out := fixed.SubFloor(book.ledger.BalanceOf(received, self), before)
	if minOut != nil && out.Lt(minOut) {
		return common.Settlement{}, errors.Wrapf(common.ErrSlippage, "received %s, minimum %s", out.Dec(), minOut.Dec())
	}
	if reported != nil && !reported.Eq(out) {
		book.log.Warn().
			Str("reported", reported.Dec()).
			Str("received", out.Dec()).
			Msg("fallback venue misreported its proceeds")
	}

	payout := out
	if order.Side == common.Sell {
		fee = book.cfg.FeeBps.Of(out)
		book.addFee(fee)
		payout = new(uint256.Int).Sub(out, fee)
	}
	if err := book.ledger.Transfer(received, self, order.Owner, payout); err != nil {
		return common.Settlement{}, err
	}

	s := common.Settlement{
		Asset: order.Asset,
		Fill:  fill.Clone(),
		Fee:   fee.Clone(),
	}
	if order.Side == common.Buy {
		s.BuyID = order.ID
		s.Notional = amount.Clone()
		s.Price = calcPrice(out, amount)
	} else {
		s.SellID = order.ID
		s.Notional = out.Clone()
		s.Price = calcPrice(fill, out)
	}

	book.ledger.Emit(events.Event{
		Kind:      events.TradeSettled,
		OrderID:   order.ID,
		Owner:     order.Owner,
		Asset:     order.Asset,
		Side:      order.Side,
		OrderKind: order.Kind,
		Amount:    fill.Clone(),
		Price:     s.Price.Clone(),
		Value:     s.Notional.Clone(),
		Fee:       fee.Clone(),
	})
	book.advance(order, fill)
	return s, nil
}

// calcPrice is the effective price paid for units of asset costing
// notional of currency.
func calcPrice(units, notional *uint256.Int) *uint256.Int {
	if units.IsZero() {
		return fixed.Zero()
	}
	price, ok := fixed.MulDiv(notional, fixed.PriceScale, units)
	if !ok {
		return fixed.Zero()
	}
	return price
}
