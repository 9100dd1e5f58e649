// Package fallback defines the external venue the book can route an
// owner's order to when neither a counterparty nor the pool is wanted.
package fallback

import (
	"context"
	"sync"

	"skoll/internal/common"
	"skoll/internal/fixed"
	"skoll/internal/ledger"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Executor swaps between the base currency and an asset at an external
// venue. The caller transfers amount of the input to Address() before the
// call; the executor pays the proceeds back to the caller before it
// returns. A buy spends currency for asset, a sell spends asset for
// currency.
type Executor interface {
	Address() common.Address
	ExecuteTrade(ctx context.Context, asset common.Address, amount, minOut *uint256.Int, isBuy bool) (*uint256.Int, error)
}

// Venue is a fixed-rate venue over the ledger. It quotes one price per
// asset, in currency base units per whole asset unit, and settles against
// whatever inventory its address holds.
type Venue struct {
	address  common.Address
	currency common.Address
	payee    func() common.Address
	ledger   *ledger.Ledger
	log      zerolog.Logger

	mu    sync.RWMutex
	rates map[common.Address]*uint256.Int
}

// NewVenue creates a venue that pays proceeds to whatever payee returns at
// call time, normally the registry's order book.
func NewVenue(address, currency common.Address, payee func() common.Address, l *ledger.Ledger, log zerolog.Logger) *Venue {
	return &Venue{
		address:  address,
		currency: currency,
		payee:    payee,
		ledger:   l,
		log:      log.With().Str("component", "fallback").Logger(),
		rates:    make(map[common.Address]*uint256.Int),
	}
}

func (v *Venue) Address() common.Address {
	return v.address
}

// SetRate quotes asset at price. A zero price withdraws the quote.
func (v *Venue) SetRate(asset common.Address, price *uint256.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if price == nil || price.IsZero() {
		delete(v.rates, asset)
		return
	}
	v.rates[asset] = price.Clone()
}

// Rate returns the quoted price for asset.
func (v *Venue) Rate(asset common.Address) (*uint256.Int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	price, ok := v.rates[asset]
	if !ok {
		return nil, false
	}
	return price.Clone(), true
}

// Quote is what ExecuteTrade would pay for amount right now.
func (v *Venue) Quote(asset common.Address, amount *uint256.Int, isBuy bool) (*uint256.Int, error) {
	price, ok := v.Rate(asset)
	if !ok {
		return nil, errors.Wrapf(common.ErrFallbackFailed, "no quote for %s", asset.Hex())
	}
	out, ok := quote(amount, price, isBuy)
	if !ok {
		return nil, common.ErrOverflow
	}
	return out, nil
}

// quote converts currency to asset at price for a buy, asset to currency
// for a sell. Both round down.
func quote(amount, price *uint256.Int, isBuy bool) (*uint256.Int, bool) {
	if isBuy {
		return fixed.MulDiv(amount, fixed.PriceScale, price)
	}
	return fixed.CheckedNotional(amount, price)
}

func (v *Venue) ExecuteTrade(ctx context.Context, asset common.Address, amount, minOut *uint256.Int, isBuy bool) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(common.ErrFallbackFailed, err.Error())
	}
	if amount == nil || amount.IsZero() {
		return nil, common.ErrZeroAmount
	}

	out, err := v.Quote(asset, amount, isBuy)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Lt(minOut) {
		return nil, errors.Wrapf(common.ErrSlippage, "venue pays %s, minimum %s", out.Dec(), minOut.Dec())
	}

	paid := asset
	if !isBuy {
		paid = v.currency
	}
	if err := v.ledger.Transfer(paid, v.address, v.payee(), out); err != nil {
		return nil, errors.Wrap(common.ErrFallbackFailed, err.Error())
	}

	v.log.Debug().
		Str("asset", asset.Hex()).
		Bool("buy", isBuy).
		Str("in", amount.Dec()).
		Str("out", out.Dec()).
		Msg("fallback trade")
	return out, nil
}
