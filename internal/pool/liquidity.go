package pool

import (
	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// DepositResult reports the epoch the deposit landed in and the shares it
// minted.
type DepositResult struct {
	Epoch  uint64
	Shares *uint256.Int
}

// Deposit supplies amount of a compartment's own asset into its current
// epoch. The first deposit of an epoch mints shares one for one; later ones
// mint amount*totalShares/accounted so dust held in the raw balance never
// dilutes newcomers.
func (p *Pool) Deposit(caller, asset common.Address, c common.Compartment, amount *uint256.Int) (DepositResult, error) {
	if err := p.validateAsset(asset, c); err != nil {
		return DepositResult{}, err
	}
	if p.registry.IsAssetBlocked(asset) {
		return DepositResult{}, common.ErrAssetBlocked
	}
	if amount == nil || amount.IsZero() {
		return DepositResult{}, common.ErrZeroAmount
	}
	if _, ok := p.registry.PairOf(asset); !ok {
		return DepositResult{}, errors.Wrap(common.ErrNoPair, asset.Hex())
	}

	var result DepositResult
	err := p.ledger.Atomic(func() error {
		comp := p.compartment(asset, c)
		st := comp.current()
		result.Epoch = comp.epoch

		var shares *uint256.Int
		switch {
		case st.TotalShares.IsZero():
			shares = amount.Clone()
		case st.Accounted.IsZero():
			return common.ErrDegenerateCompartment
		default:
			var ok bool
			shares, ok = fixed.MulDiv(amount, st.TotalShares, st.Accounted)
			if !ok {
				return common.ErrOverflow
			}
		}
		if shares.IsZero() {
			return common.ErrDustDeposit
		}

		if err := p.ledger.Transfer(p.ownAsset(asset, c), caller, p.Address(), amount); err != nil {
			return err
		}

		p.track(st, caller)
		pos := st.position(caller)
		st.settle(pos)

		st.Accounted = new(uint256.Int).Add(st.Accounted, amount)
		st.Raw = new(uint256.Int).Add(st.Raw, amount)
		st.TotalShares = new(uint256.Int).Add(st.TotalShares, shares)
		pos.Shares = new(uint256.Int).Add(pos.Shares, shares)
		pos.Contributed = new(uint256.Int).Add(pos.Contributed, amount)
		st.roll(pos)
		result.Shares = shares

		p.ledger.Emit(events.Event{
			Kind:        events.LiquidityDeposited,
			Owner:       caller,
			Asset:       asset,
			Compartment: c,
			Epoch:       comp.epoch,
			Amount:      amount.Clone(),
			Value:       shares.Clone(),
		})
		p.emitBalance(asset, c, comp.epoch, st)
		return nil
	})
	if err != nil {
		return DepositResult{}, err
	}

	p.log.Debug().
		Str("owner", caller.Hex()).
		Str("asset", asset.Hex()).
		Str("compartment", c.String()).
		Str("amount", amount.Dec()).
		Str("shares", result.Shares.Dec()).
		Msg("liquidity deposited")
	return result, nil
}

type WithdrawRequest struct {
	Asset       common.Address
	Compartment common.Compartment
	Epoch       uint64
	Bps         fixed.Bps    // Fraction of the position's shares to burn
	MinOut      *uint256.Int // Smallest acceptable own-asset amount; nil for none
}

type WithdrawResult struct {
	Amount      *uint256.Int // Own asset paid out
	Burned      *uint256.Int // Shares burned
	CrossReward *uint256.Int // Pending cross-asset reward paid alongside
}

// Withdraw burns a fraction of the caller's shares in one epoch. The payout
// is taken against the raw balance before total shares are decremented, and
// both the share burn and the payout round down so the pool never pays out
// more than a position's proportion. Own-asset rewards stay pending for
// Claim; pending cross-asset rewards are paid now.
func (p *Pool) Withdraw(caller common.Address, req WithdrawRequest) (WithdrawResult, error) {
	if err := p.validateAsset(req.Asset, req.Compartment); err != nil {
		return WithdrawResult{}, err
	}
	if req.Bps == 0 || !req.Bps.Valid() {
		return WithdrawResult{}, common.ErrInvalidBps
	}

	var result WithdrawResult
	err := p.ledger.Atomic(func() error {
		st, err := p.epochState(req.Asset, req.Compartment, req.Epoch)
		if err != nil {
			return err
		}
		pos, ok := st.positions[caller]
		if !ok || pos.Shares.IsZero() {
			return common.ErrNoPosition
		}

		burn := req.Bps.Of(pos.Shares)
		if burn.IsZero() {
			return common.ErrDustWithdrawal
		}
		out := fixed.MustMulDiv(burn, st.Raw, st.TotalShares)
		accountedOut := fixed.MustMulDiv(burn, st.Accounted, st.TotalShares)
		contributedOut := fixed.MustMulDiv(burn, pos.Contributed, pos.Shares)
		if req.MinOut != nil && out.Lt(req.MinOut) {
			return errors.Wrapf(common.ErrSlippage, "withdrawal pays %s, minimum %s", out.Dec(), req.MinOut.Dec())
		}

		p.track(st, caller)
		st.settle(pos)
		cross := fixed.Min(pos.PendingCross, st.CrossBalance)

		st.Raw = new(uint256.Int).Sub(st.Raw, out)
		st.Accounted = new(uint256.Int).Sub(st.Accounted, accountedOut)
		st.TotalShares = new(uint256.Int).Sub(st.TotalShares, burn)
		st.CrossBalance = new(uint256.Int).Sub(st.CrossBalance, cross)
		pos.Shares = new(uint256.Int).Sub(pos.Shares, burn)
		pos.Contributed = new(uint256.Int).Sub(pos.Contributed, contributedOut)
		pos.PendingCross = new(uint256.Int).Sub(pos.PendingCross, cross)
		st.roll(pos)

		if err := p.ledger.Transfer(p.ownAsset(req.Asset, req.Compartment), p.Address(), caller, out); err != nil {
			return err
		}
		if err := p.ledger.Transfer(p.crossAsset(req.Asset, req.Compartment), p.Address(), caller, cross); err != nil {
			return err
		}
		result = WithdrawResult{Amount: out, Burned: burn, CrossReward: cross}

		p.ledger.Emit(events.Event{
			Kind:        events.LiquidityWithdrawn,
			Owner:       caller,
			Asset:       req.Asset,
			Compartment: req.Compartment,
			Epoch:       req.Epoch,
			Amount:      out.Clone(),
			Value:       burn.Clone(),
			Fee:         cross.Clone(),
		})
		p.emitBalance(req.Asset, req.Compartment, req.Epoch, st)

		if st.Raw.IsZero() && req.Epoch == p.CurrentEpoch(req.Asset, req.Compartment) {
			p.advanceEpoch(req.Asset, req.Compartment)
		}
		return nil
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	p.log.Debug().
		Str("owner", caller.Hex()).
		Str("asset", req.Asset.Hex()).
		Str("compartment", req.Compartment.String()).
		Uint64("epoch", req.Epoch).
		Str("amount", result.Amount.Dec()).
		Str("cross", result.CrossReward.Dec()).
		Msg("liquidity withdrawn")
	return result, nil
}
