// Package exchange wires one ledger, one order book, one liquidity pool and
// the fallback venue together, and serializes every call made into them.
package exchange

import (
	"time"

	"skoll/internal/common"
	"skoll/internal/engine"
	"skoll/internal/events"
	"skoll/internal/fallback"
	"skoll/internal/ledger"
	"skoll/internal/pool"
	"skoll/internal/registry"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Balance is an amount of one asset credited to one account at start-up.
type Balance struct {
	Owner  common.Address
	Asset  common.Address
	Amount *uint256.Int
}

type Params struct {
	Engine   engine.Config
	Registry registry.Registry
	Sink     events.Sink      // Receives every committed event
	Now      func() time.Time // Defaults to time.Now
	Rates    map[common.Address]*uint256.Int
	Genesis  []Balance
	LastSeq  uint64 // Event numbering resumes after this
}

// Exchange owns the state of every component. Its fields are only safe to
// touch from within a Sequencer call.
type Exchange struct {
	Registry registry.Registry
	Ledger   *ledger.Ledger
	Pool     *pool.Pool
	Venue    *fallback.Venue
	Book     *engine.OrderBook
}

func New(p Params, log zerolog.Logger) *Exchange {
	l := ledger.New(p.Sink, p.Now, log)
	l.Resume(p.LastSeq)
	for _, b := range p.Genesis {
		l.Mint(b.Asset, b.Owner, b.Amount)
	}

	currency := p.Engine.Currency
	liquidity := pool.New(currency, p.Registry, l, log)
	venue := fallback.NewVenue(p.Registry.Fallback(), currency, p.Registry.OrderBook, l, log)
	for asset, rate := range p.Rates {
		venue.SetRate(asset, rate)
	}

	return &Exchange{
		Registry: p.Registry,
		Ledger:   l,
		Pool:     liquidity,
		Venue:    venue,
		Book:     engine.New(p.Engine, p.Registry, l, liquidity, venue, log),
	}
}

// Currency is the base currency every asset is quoted in.
func (x *Exchange) Currency() common.Address {
	return x.Pool.Currency()
}
