package engine

import (
	"time"

	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type CreateRequest struct {
	Side   common.Side
	Kind   common.Kind
	Asset  common.Address
	Amount *uint256.Int  // Asset volume
	Price  *uint256.Int  // Limit price, or bound for market orders
	TTL    time.Duration // Lifetime from creation
	Value  *uint256.Int  // Currency attached to a buy; must be zero for a sell
}

// lock is the escrow a buy holds against filled units: the notional at its
// price plus the fee on that notional.
func (book *OrderBook) lock(order *common.Order, filled *uint256.Int) (notional, fee *uint256.Int) {
	notional = fixed.Notional(filled, order.Price)
	return notional, book.cfg.FeeBps.Of(notional)
}

// release is the escrow a buy frees when fill more units execute. It is
// always the difference of two locks, so the releases of an order add up
// to exactly what was locked at creation.
func (book *OrderBook) release(order *common.Order, fill *uint256.Int) (notional, fee *uint256.Int) {
	beforeN, beforeF := book.lock(order, order.Filled)
	afterN, afterF := book.lock(order, new(uint256.Int).Add(order.Filled, fill))
	return afterN.Sub(afterN, beforeN), afterF.Sub(afterF, beforeF)
}

func (book *OrderBook) validate(req CreateRequest) error {
	switch {
	case req.Asset == common.ZeroAddress:
		return common.ErrZeroAsset
	case req.Asset == book.cfg.Currency:
		return common.ErrBaseCurrencyAsset
	case book.registry.IsAssetBlocked(req.Asset):
		return common.ErrAssetBlocked
	case req.Side != common.Buy && req.Side != common.Sell:
		return errors.Wrapf(common.ErrValidation, "unknown side %d", req.Side)
	case req.Kind != common.Limit && req.Kind != common.Market:
		return errors.Wrapf(common.ErrValidation, "unknown kind %d", req.Kind)
	case req.Amount == nil || req.Amount.IsZero():
		return common.ErrZeroAmount
	case req.Price == nil || req.Price.IsZero():
		return common.ErrZeroPrice
	}
	if (book.cfg.MinAmount != nil && req.Amount.Lt(book.cfg.MinAmount)) ||
		(book.cfg.MaxAmount != nil && req.Amount.Gt(book.cfg.MaxAmount)) {
		return errors.Wrapf(common.ErrAmountOutOfBounds, "amount %s", req.Amount.Dec())
	}
	if req.TTL < book.cfg.MinTTL || req.TTL > book.cfg.MaxTTL {
		return errors.Wrapf(common.ErrTTLOutOfBounds, "ttl %v", req.TTL)
	}
	return nil
}

// Create escrows the funds backing a new order and rests it in its queue.
// A buy must attach at least the notional plus its fee; any excess is
// refunded and the fee is credited to the fee ledger upfront. A sell
// escrows its asset volume.
func (book *OrderBook) Create(caller common.Address, req CreateRequest) (uint64, error) {
	if err := book.validate(req); err != nil {
		return 0, err
	}
	value := req.Value
	if value == nil {
		value = fixed.Zero()
	}

	// Every later settlement is at most the notional of the whole amount.
	notional, ok := fixed.CheckedNotional(req.Amount, req.Price)
	if !ok {
		return 0, common.ErrOverflow
	}

	var (
		required = fixed.Zero()
		fee      = fixed.Zero()
	)
	switch req.Side {
	case common.Buy:
		if notional.IsZero() {
			return 0, errors.Wrap(common.ErrAmountOutOfBounds, "notional rounds to zero")
		}
		fee = book.cfg.FeeBps.Of(notional)
		if required, ok = fixed.CheckedAdd(notional, fee); !ok {
			return 0, common.ErrOverflow
		}
		if value.Lt(required) {
			return 0, errors.Wrapf(common.ErrInsufficientFunds, "attached %s, required %s", value.Dec(), required.Dec())
		}
	case common.Sell:
		if !value.IsZero() {
			return 0, common.ErrUnexpectedValue
		}
	}

	var order *common.Order
	err := book.call(func() error {
		switch req.Side {
		case common.Buy:
			if err := book.ledger.Transfer(book.cfg.Currency, caller, book.Address(), value); err != nil {
				return err
			}
			if err := book.ledger.Transfer(book.cfg.Currency, book.Address(), caller, new(uint256.Int).Sub(value, required)); err != nil {
				return err
			}
			book.addFee(fee)
		case common.Sell:
			if err := book.ledger.Transfer(req.Asset, caller, book.Address(), req.Amount); err != nil {
				return err
			}
		}

		now := book.ledger.Now()
		prevID := book.lastID
		book.lastID++
		book.ledger.OnRollback(func() { book.lastID = prevID })

		order = &common.Order{
			ID:         book.lastID,
			Owner:      caller,
			Side:       req.Side,
			Kind:       req.Kind,
			Asset:      req.Asset,
			Amount:     req.Amount.Clone(),
			Price:      req.Price.Clone(),
			Filled:     fixed.Zero(),
			Expiration: now.Add(req.TTL),
			CreatedAt:  now,
			Status:     common.Active,
		}
		book.orders[order.ID] = order
		book.ledger.OnRollback(func() { delete(book.orders, order.ID) })
		book.enqueue(order)

		book.ledger.Emit(events.Event{
			Kind:      events.OrderCreated,
			OrderID:   order.ID,
			Owner:     caller,
			Asset:     order.Asset,
			Side:      order.Side,
			OrderKind: order.Kind,
			Amount:    order.Amount.Clone(),
			Price:     order.Price.Clone(),
			Value:     required.Clone(),
			Fee:       fee.Clone(),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	book.log.Debug().
		Uint64("id", order.ID).
		Str("owner", caller.Hex()).
		Str("side", order.Side.String()).
		Str("kind", order.Kind.String()).
		Str("amount", order.Amount.Dec()).
		Str("price", order.Price.Dec()).
		Msg("order created")
	return order.ID, nil
}

// Cancel withdraws an owner's active order and refunds its unfilled
// escrow.
func (book *OrderBook) Cancel(caller common.Address, id uint64) error {
	return book.call(func() error {
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
		return book.close(order, common.Cancelled, events.OrderCancelled)
	})
}

// CleanupExpired retires an order whose expiration has passed. Anyone may
// call it; the refund always goes to the owner.
func (book *OrderBook) CleanupExpired(caller common.Address, id uint64) error {
	return book.call(func() error {
		order, ok := book.orders[id]
		if !ok {
			return common.ErrOrderNotFound
		}
		if order.Status != common.Active {
			return common.ErrOrderNotActive
		}
		if !order.ExpiredAt(book.ledger.Now()) {
			return common.ErrOrderNotExpired
		}
		book.log.Debug().Uint64("id", id).Str("caller", caller.Hex()).Msg("cleaning up expired order")
		return book.close(order, common.Expired, events.OrderExpired)
	})
}

// close refunds the unfilled escrow of an active order and moves it to a
// terminal status. A buy's unfilled fee is paid back out of the fee
// ledger, capped by what the ledger holds.
func (book *OrderBook) close(order *common.Order, status common.Status, kind events.Kind) error {
	remaining := order.Remaining()
	refund, feeRefund := fixed.Zero(), fixed.Zero()

	switch order.Side {
	case common.Buy:
		refund, feeRefund = book.release(order, remaining)
		feeRefund = book.takeFee(feeRefund)
		total := new(uint256.Int).Add(refund, feeRefund)
		if err := book.ledger.Transfer(book.cfg.Currency, book.Address(), order.Owner, total); err != nil {
			return err
		}
	case common.Sell:
		if err := book.ledger.Transfer(order.Asset, book.Address(), order.Owner, remaining); err != nil {
			return err
		}
	}

	book.track(order)
	order.Status = status
	book.unindex(order)

	book.ledger.Emit(events.Event{
		Kind:      kind,
		OrderID:   order.ID,
		Owner:     order.Owner,
		Asset:     order.Asset,
		Side:      order.Side,
		OrderKind: order.Kind,
		Amount:    remaining,
		Price:     order.Price.Clone(),
		Value:     refund,
		Fee:       feeRefund,
	})
	book.log.Debug().
		Uint64("id", order.ID).
		Str("status", status.String()).
		Str("remaining", remaining.Dec()).
		Msg("order closed")
	return nil
}
