// Package pool implements the dual-sided liquidity pool that supplies the
// missing side of a trade when the book has no counterparty.
//
// Every tradable asset has two compartments: one holding base currency and
// one holding the asset. Each keeps proportional-share accounting per
// epoch, an own-asset reward accumulator fed by fee distribution, and a
// cross-asset accumulator fed by executions: when the book takes inventory
// out of a compartment, the counter-asset it pays in is credited to that
// compartment's providers.
package pool

import (
	"skoll/internal/common"
	"skoll/internal/events"
	"skoll/internal/ledger"
	"skoll/internal/registry"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Pool struct {
	currency     common.Address
	registry     registry.Registry
	ledger       *ledger.Ledger
	compartments map[compartmentKey]*compartment
	log          zerolog.Logger
}

// New creates an empty pool holding its inventory at the registry's pool
// address.
func New(currency common.Address, reg registry.Registry, l *ledger.Ledger, log zerolog.Logger) *Pool {
	return &Pool{
		currency:     currency,
		registry:     reg,
		ledger:       l,
		compartments: make(map[compartmentKey]*compartment),
		log:          log.With().Str("component", "pool").Logger(),
	}
}

// Currency is the base currency the currency compartments hold.
func (p *Pool) Currency() common.Address {
	return p.currency
}

// Address is the ledger account holding the pool's inventory and rewards.
func (p *Pool) Address() common.Address {
	return p.registry.Pool()
}

// ownAsset is the asset a compartment holds; crossAsset the one its
// providers earn from executions.
func (p *Pool) ownAsset(asset common.Address, c common.Compartment) common.Address {
	if c == common.CurrencyCompartment {
		return p.currency
	}
	return asset
}

func (p *Pool) crossAsset(asset common.Address, c common.Compartment) common.Address {
	return p.ownAsset(asset, c.Other())
}

func (p *Pool) validateAsset(asset common.Address, c common.Compartment) error {
	switch {
	case asset == common.ZeroAddress:
		return common.ErrZeroAsset
	case asset == p.currency:
		return common.ErrBaseCurrencyAsset
	case !c.Valid():
		return common.ErrInvalidCompartment
	}
	return nil
}

func (p *Pool) compartment(asset common.Address, c common.Compartment) *compartment {
	key := compartmentKey{asset, c}
	comp, ok := p.compartments[key]
	if !ok {
		comp = newCompartment()
		p.compartments[key] = comp
	}
	return comp
}

func (p *Pool) epochState(asset common.Address, c common.Compartment, epoch uint64) (*EpochState, error) {
	comp, ok := p.compartments[compartmentKey{asset, c}]
	if !ok {
		if epoch == 0 {
			return newEpochState(), nil
		}
		return nil, errors.Wrapf(common.ErrUnknownEpoch, "%s %s epoch %d", asset.Hex(), c, epoch)
	}
	st, ok := comp.epochs[epoch]
	if !ok {
		return nil, errors.Wrapf(common.ErrUnknownEpoch, "%s %s epoch %d", asset.Hex(), c, epoch)
	}
	return st, nil
}

// track registers the undo step for every mutation about to be made to st
// and, when owner is non-zero, to owner's position in it.
func (p *Pool) track(st *EpochState, owner common.Address) {
	saved := st.scalars()
	var (
		pos      *Position
		savedPos *Position
		had      bool
	)
	if owner != common.ZeroAddress {
		pos, had = st.positions[owner]
		if had {
			savedPos = pos.clone()
		}
	}
	p.ledger.OnRollback(func() {
		st.restore(saved)
		if owner == common.ZeroAddress {
			return
		}
		if had {
			*pos = *savedPos
		} else {
			delete(st.positions, owner)
		}
	})
}

// advanceEpoch seals the current epoch of a compartment whose inventory
// returned to zero and opens a fresh one, so later depositors never share
// in the rounding residue or the reward history of the exhausted epoch.
func (p *Pool) advanceEpoch(asset common.Address, c common.Compartment) {
	comp := p.compartment(asset, c)
	sealed := comp.epoch
	comp.epoch++
	comp.epochs[comp.epoch] = newEpochState()

	p.ledger.OnRollback(func() {
		delete(comp.epochs, sealed+1)
		comp.epoch = sealed
	})

	p.ledger.Emit(events.Event{
		Kind:        events.EpochIncremented,
		Asset:       asset,
		Compartment: c,
		Epoch:       comp.epoch,
	})
	p.log.Info().
		Str("asset", asset.Hex()).
		Str("compartment", c.String()).
		Uint64("epoch", comp.epoch).
		Msg("epoch incremented")
}

// emitBalance reports a compartment's balances: Amount is the raw
// inventory, Value the accounted principal, Price the total shares.
func (p *Pool) emitBalance(asset common.Address, c common.Compartment, epoch uint64, st *EpochState) {
	p.ledger.Emit(events.Event{
		Kind:        events.CompartmentUpdated,
		Asset:       asset,
		Compartment: c,
		Epoch:       epoch,
		Amount:      st.Raw.Clone(),
		Value:       st.Accounted.Clone(),
		Price:       st.TotalShares.Clone(),
	})
}

// CurrentEpoch is the epoch a compartment currently accepts deposits in.
func (p *Pool) CurrentEpoch(asset common.Address, c common.Compartment) uint64 {
	if comp, ok := p.compartments[compartmentKey{asset, c}]; ok {
		return comp.epoch
	}
	return 0
}

// Compartment returns a deep copy of one compartment epoch.
func (p *Pool) Compartment(asset common.Address, c common.Compartment, epoch uint64) (EpochState, error) {
	st, err := p.epochState(asset, c, epoch)
	if err != nil {
		return EpochState{}, err
	}
	return st.snapshot(), nil
}

// Position returns a copy of owner's position, or false if there is none.
func (p *Pool) Position(asset common.Address, c common.Compartment, epoch uint64, owner common.Address) (Position, bool) {
	st, err := p.epochState(asset, c, epoch)
	if err != nil {
		return Position{}, false
	}
	pos, ok := st.positions[owner]
	if !ok {
		return Position{}, false
	}
	return *pos.clone(), true
}

// Pending returns what owner could claim right now, own-asset and
// cross-asset.
func (p *Pool) Pending(asset common.Address, c common.Compartment, epoch uint64, owner common.Address) (own, cross *uint256.Int) {
	pos, ok := p.Position(asset, c, epoch, owner)
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	st, _ := p.epochState(asset, c, epoch)
	scratch := pos.clone()
	st.settle(scratch)
	return scratch.PendingReward, scratch.PendingCross
}
