package net

import (
	"context"

	"skoll/internal/common"
	"skoll/internal/engine"
	"skoll/internal/exchange"
	"skoll/internal/fixed"
	"skoll/internal/pool"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// execute runs one request against the exchange. It is called from within
// a Sequencer call. The returned values are what the result report carries:
//
//	CreateOrder          order id
//	Fulfill*             buy id, sell id, fill, price, notional, fee per settlement
//	Deposit              epoch, shares
//	Withdraw             amount, burned shares, cross reward
//	Claim                reward, cross reward
func execute(ctx context.Context, x *exchange.Exchange, msg Message) ([]*uint256.Int, error) {
	caller := msg.Caller()

	switch m := msg.(type) {
	case CreateOrderMessage:
		id, err := x.Book.Create(caller, engine.CreateRequest{
			Side:   m.Side,
			Kind:   m.Kind,
			Asset:  m.Asset,
			Amount: m.Amount,
			Price:  m.Price,
			TTL:    m.TTL,
			Value:  m.Value,
		})
		if err != nil {
			return nil, err
		}
		return []*uint256.Int{uint256.NewInt(id)}, nil

	case OrderMessage:
		if m.TypeOf == CancelOrder {
			return nil, x.Book.Cancel(caller, m.OrderID)
		}
		return nil, x.Book.CleanupExpired(caller, m.OrderID)

	case FulfillMessage:
		var (
			ss  []common.Settlement
			err error
		)
		if m.TypeOf == FulfillMarket {
			ss, err = x.Book.FulfillMarket(caller, m.Matches, m.Prices)
		} else {
			ss, err = x.Book.FulfillLimit(caller, m.Matches)
		}
		return settlementValues(ss...), err

	case FulfillWithPoolMessage:
		ss, err := x.Book.FulfillWithPool(caller, m.OrderIDs, m.Fills)
		return settlementValues(ss...), err

	case FulfillWithFallbackMessage:
		s, err := x.Book.FulfillOwnWithFallback(ctx, caller, m.OrderID, m.Fill, m.MinOut)
		if err != nil {
			return nil, err
		}
		return settlementValues(s), nil

	case PoolMessage:
		switch m.TypeOf {
		case Deposit:
			res, err := x.Pool.Deposit(caller, m.Asset, m.Compartment, m.Amount)
			if err != nil {
				return nil, err
			}
			return []*uint256.Int{uint256.NewInt(res.Epoch), res.Shares}, nil
		case Claim:
			res, err := x.Pool.Claim(caller, m.Asset, m.Epoch, m.Compartment)
			if err != nil {
				return nil, err
			}
			return []*uint256.Int{res.Reward, res.CrossReward}, nil
		default:
			return nil, x.Pool.DistributeFee(caller, m.Asset, m.Epoch, m.Compartment, m.Amount)
		}

	case WithdrawMessage:
		var minOut *uint256.Int
		if m.MinOut != nil && !m.MinOut.IsZero() {
			minOut = m.MinOut
		}
		res, err := x.Pool.Withdraw(caller, pool.WithdrawRequest{
			Asset:       m.Asset,
			Compartment: m.Compartment,
			Epoch:       m.Epoch,
			Bps:         fixed.Bps(m.Bps),
			MinOut:      minOut,
		})
		if err != nil {
			return nil, err
		}
		return []*uint256.Int{res.Amount, res.Burned, res.CrossReward}, nil
	}
	return nil, errors.Wrapf(ErrInvalidMessageType, "%s is not a call", msg.GetType())
}

func settlementValues(ss ...common.Settlement) []*uint256.Int {
	out := make([]*uint256.Int, 0, 6*len(ss))
	for _, s := range ss {
		out = append(out,
			uint256.NewInt(s.BuyID),
			uint256.NewInt(s.SellID),
			s.Fill, s.Price, s.Notional, s.Fee,
		)
	}
	return out
}
