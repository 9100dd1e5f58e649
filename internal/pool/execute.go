package pool

import (
	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ExecuteBuy sells assetOut units of the asset compartment to the book for
// currencyIn of base currency. The currency is credited to the asset
// compartment's providers as cross reward.
func (p *Pool) ExecuteBuy(caller, asset common.Address, assetOut, currencyIn *uint256.Int) error {
	return p.execute(caller, asset, common.AssetCompartment, assetOut, currencyIn)
}

// ExecuteSell buys assetIn units of the asset from the book, paying
// currencyOut out of the currency compartment. The asset is credited to the
// currency compartment's providers as cross reward.
func (p *Pool) ExecuteSell(caller, asset common.Address, assetIn, currencyOut *uint256.Int) error {
	return p.execute(caller, asset, common.CurrencyCompartment, currencyOut, assetIn)
}

// execute moves out units of a compartment's own asset to the book and
// takes in units of the other asset as the compartment's cross reward.
func (p *Pool) execute(caller, asset common.Address, c common.Compartment, out, in *uint256.Int) error {
	if caller != p.registry.OrderBook() {
		return common.ErrNotOrderBook
	}
	if err := p.validateAsset(asset, c); err != nil {
		return err
	}
	if out == nil || out.IsZero() || in == nil || in.IsZero() {
		return common.ErrZeroAmount
	}

	return p.ledger.Atomic(func() error {
		comp := p.compartment(asset, c)
		st := comp.current()
		if st.Raw.Lt(out) {
			return errors.Wrapf(common.ErrInsufficientLiquidity,
				"%s %s holds %s, needs %s", asset.Hex(), c, st.Raw.Dec(), out.Dec())
		}
		if st.TotalShares.IsZero() {
			return common.ErrNoShares
		}

		if err := p.ledger.Transfer(p.crossAsset(asset, c), caller, p.Address(), in); err != nil {
			return err
		}
		if err := p.ledger.Transfer(p.ownAsset(asset, c), p.Address(), caller, out); err != nil {
			return err
		}

		p.track(st, common.ZeroAddress)
		st.Raw = new(uint256.Int).Sub(st.Raw, out)
		st.Accounted = fixed.SubFloor(st.Accounted, out)
		if err := p.creditCross(st, in); err != nil {
			return err
		}

		p.ledger.Emit(events.Event{
			Kind:        events.CrossRewardCredited,
			Asset:       asset,
			Compartment: c,
			Epoch:       comp.epoch,
			Amount:      in.Clone(),
			Value:       out.Clone(),
		})
		p.emitBalance(asset, c, comp.epoch, st)

		if st.Raw.IsZero() {
			p.advanceEpoch(asset, c)
		}
		return nil
	})
}

// creditCross adds amount of the cross asset to every share of st. The
// undistributed remainder stays in the cross balance, where no position
// can claim it.
func (p *Pool) creditCross(st *EpochState, amount *uint256.Int) error {
	delta, _, ok := perShare(amount, st.TotalShares)
	if !ok {
		return common.ErrAccumulatorOverflow
	}
	acc, ok := fixed.CheckedAdd(st.AccCross, delta)
	if !ok {
		return common.ErrAccumulatorOverflow
	}
	st.AccCross = acc
	st.CrossBalance = new(uint256.Int).Add(st.CrossBalance, amount)
	return nil
}

// Inventory is the raw balance the current epoch of a compartment can
// serve executions from.
func (p *Pool) Inventory(asset common.Address, c common.Compartment) *uint256.Int {
	comp, ok := p.compartments[compartmentKey{asset, c}]
	if !ok {
		return fixed.Zero()
	}
	return comp.current().Raw.Clone()
}
