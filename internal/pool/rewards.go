package pool

import (
	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
)

// DistributeFee credits amount of a compartment's own asset to every share
// of one of its epochs. The part the per-share increment cannot express is
// dust: it joins the raw balance, and therefore future withdrawals, without
// joining the accounted balance that prices new shares.
func (p *Pool) DistributeFee(caller, asset common.Address, epoch uint64, c common.Compartment, amount *uint256.Int) error {
	if caller != p.registry.OrderBook() && !p.registry.IsRewardDistributor(caller) {
		return common.ErrNotDistributor
	}
	if err := p.validateAsset(asset, c); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return common.ErrZeroAmount
	}

	return p.ledger.Atomic(func() error {
		st, err := p.epochState(asset, c, epoch)
		if err != nil {
			return err
		}
		if st.TotalShares.IsZero() {
			return common.ErrNoShares
		}

		delta, distributed, ok := perShare(amount, st.TotalShares)
		if !ok {
			return common.ErrAccumulatorOverflow
		}
		acc, ok := fixed.CheckedAdd(st.AccReward, delta)
		if !ok {
			return common.ErrAccumulatorOverflow
		}

		if err := p.ledger.Transfer(p.ownAsset(asset, c), caller, p.Address(), amount); err != nil {
			return err
		}

		p.track(st, common.ZeroAddress)
		dust := new(uint256.Int).Sub(amount, distributed)
		st.AccReward = acc
		st.RewardBalance = new(uint256.Int).Add(st.RewardBalance, distributed)
		st.Raw = new(uint256.Int).Add(st.Raw, dust)

		p.ledger.Emit(events.Event{
			Kind:        events.FeeDistributed,
			Owner:       caller,
			Asset:       asset,
			Compartment: c,
			Epoch:       epoch,
			Amount:      amount.Clone(),
			Value:       dust,
		})
		if !dust.IsZero() {
			p.emitBalance(asset, c, epoch, st)
		}
		return nil
	})
}

type ClaimResult struct {
	Reward      *uint256.Int // Own asset paid
	CrossReward *uint256.Int // Cross asset paid
}

// Claim pays out everything the caller's position in one epoch has accrued
// and not yet been paid. It works on positions whose shares are all burned;
// claiming again with nothing new accrued pays zero.
func (p *Pool) Claim(caller, asset common.Address, epoch uint64, c common.Compartment) (ClaimResult, error) {
	if err := p.validateAsset(asset, c); err != nil {
		return ClaimResult{}, err
	}

	result := ClaimResult{Reward: fixed.Zero(), CrossReward: fixed.Zero()}
	err := p.ledger.Atomic(func() error {
		st, err := p.epochState(asset, c, epoch)
		if err != nil {
			return err
		}
		pos, ok := st.positions[caller]
		if !ok {
			return nil
		}

		p.track(st, caller)
		st.settle(pos)
		own := fixed.Min(pos.PendingReward, st.RewardBalance)
		cross := fixed.Min(pos.PendingCross, st.CrossBalance)

		pos.PendingReward = fixed.Zero()
		pos.PendingCross = fixed.Zero()
		st.roll(pos)
		st.RewardBalance = new(uint256.Int).Sub(st.RewardBalance, own)
		st.CrossBalance = new(uint256.Int).Sub(st.CrossBalance, cross)

		if err := p.ledger.Transfer(p.ownAsset(asset, c), p.Address(), caller, own); err != nil {
			return err
		}
		if err := p.ledger.Transfer(p.crossAsset(asset, c), p.Address(), caller, cross); err != nil {
			return err
		}
		result = ClaimResult{Reward: own, CrossReward: cross}

		if !own.IsZero() || !cross.IsZero() {
			p.ledger.Emit(events.Event{
				Kind:        events.FeeClaimed,
				Owner:       caller,
				Asset:       asset,
				Compartment: c,
				Epoch:       epoch,
				Amount:      own.Clone(),
				Value:       cross.Clone(),
			})
		}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}
