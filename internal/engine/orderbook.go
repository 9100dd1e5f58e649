// Package engine implements the order book: order lifecycle, escrow of the
// funds backing every active order, and the fulfilment paths that settle
// orders against each other, against the liquidity pool, or through the
// fallback venue.
//
// Every entry point runs as one ledger call, so a failing call leaves no
// trace in balances, order state or the event stream.
package engine

import (
	"time"

	"skoll/internal/common"
	"skoll/internal/fallback"
	"skoll/internal/fixed"
	"skoll/internal/ledger"
	"skoll/internal/registry"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Pool is the part of the liquidity pool the book settles against.
type Pool interface {
	ExecuteBuy(caller, asset common.Address, assetOut, currencyIn *uint256.Int) error
	ExecuteSell(caller, asset common.Address, assetIn, currencyOut *uint256.Int) error
	DistributeFee(caller, asset common.Address, epoch uint64, c common.Compartment, amount *uint256.Int) error
	CurrentEpoch(asset common.Address, c common.Compartment) uint64
}

type Config struct {
	Currency       common.Address // Base currency every asset is priced in
	FeeBps         fixed.Bps      // Charged to each side of a fill
	RewardSplitBps fixed.Bps      // Share of pool-path fees forwarded to currency providers
	MinAmount      *uint256.Int
	MaxAmount      *uint256.Int
	MinTTL         time.Duration
	MaxTTL         time.Duration
}

type queueKey struct {
	asset common.Address
	side  common.Side
	kind  common.Kind
}

type indexKey struct {
	asset common.Address
	kind  common.Kind
}

type OrderBook struct {
	cfg      Config
	registry registry.Registry
	ledger   *ledger.Ledger
	pool     Pool
	fallback fallback.Executor

	orders map[uint64]*common.Order
	// Append-only, in creation order. Membership of the active set is
	// derived from order state.
	queues map[queueKey][]uint64
	index  map[indexKey]*priceIndex

	// Some book keeping
	lastID  uint64       // Highest id handed out
	fees    *uint256.Int // Protocol fee ledger, in base currency
	entered bool         // A call is in progress

	log zerolog.Logger
}

func New(cfg Config, reg registry.Registry, l *ledger.Ledger, p Pool, f fallback.Executor, log zerolog.Logger) *OrderBook {
	return &OrderBook{
		cfg:      cfg,
		registry: reg,
		ledger:   l,
		pool:     p,
		fallback: f,
		orders:   make(map[uint64]*common.Order),
		queues:   make(map[queueKey][]uint64),
		index:    make(map[indexKey]*priceIndex),
		fees:     fixed.Zero(),
		log:      log.With().Str("component", "orderbook").Logger(),
	}
}

// Address is the ledger account holding every order's escrow and the fee
// ledger.
func (book *OrderBook) Address() common.Address {
	return book.registry.OrderBook()
}

// call runs fn as one atomic ledger call. A call into the book made while
// another is still running, typically from an external venue called in the
// middle of a settlement, is rejected.
func (book *OrderBook) call(fn func() error) error {
	if book.entered {
		return common.ErrReentrant
	}
	book.entered = true
	defer func() { book.entered = false }()

	return book.ledger.Atomic(fn)
}

// track registers the undo step for mutations about to be made to order.
func (book *OrderBook) track(order *common.Order) {
	saved := order.Clone()
	book.ledger.OnRollback(func() { *order = *saved })
}

func (book *OrderBook) addFee(amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	prev := book.fees
	book.fees = new(uint256.Int).Add(prev, amount)
	book.ledger.OnRollback(func() { book.fees = prev })
}

// takeFee debits up to amount from the fee ledger and returns what it
// could take.
func (book *OrderBook) takeFee(amount *uint256.Int) *uint256.Int {
	taken := fixed.Min(amount, book.fees)
	if taken.IsZero() {
		return taken
	}
	prev := book.fees
	book.fees = new(uint256.Int).Sub(prev, taken)
	book.ledger.OnRollback(func() { book.fees = prev })
	return taken
}

func (book *OrderBook) priceIndex(asset common.Address, kind common.Kind) *priceIndex {
	key := indexKey{asset, kind}
	idx, ok := book.index[key]
	if !ok {
		idx = newPriceIndex()
		book.index[key] = idx
	}
	return idx
}

func (book *OrderBook) enqueue(order *common.Order) {
	key := queueKey{order.Asset, order.Side, order.Kind}
	book.queues[key] = append(book.queues[key], order.ID)
	book.ledger.OnRollback(func() {
		q := book.queues[key]
		book.queues[key] = q[:len(q)-1]
	})

	idx := book.priceIndex(order.Asset, order.Kind)
	idx.insert(order.Side, order.Price, order.ID, -1)
	book.ledger.OnRollback(func() { idx.remove(order.Side, order.Price, order.ID) })
}

// unindex drops an order that reached a terminal state from the price
// index.
func (book *OrderBook) unindex(order *common.Order) {
	idx := book.priceIndex(order.Asset, order.Kind)
	pos, ok := idx.remove(order.Side, order.Price, order.ID)
	if !ok {
		return
	}
	side, price, id := order.Side, order.Price.Clone(), order.ID
	book.ledger.OnRollback(func() { idx.insert(side, price, id, pos) })
}

// active looks up an order that is still matchable now.
func (book *OrderBook) active(id uint64, now time.Time) (*common.Order, error) {
	order, ok := book.orders[id]
	if !ok {
		return nil, common.ErrOrderNotFound
	}
	if order.Status != common.Active {
		return nil, common.ErrOrderNotActive
	}
	if order.ExpiredAt(now) {
		return nil, common.ErrOrderExpired
	}
	return order, nil
}

// Order returns a copy of an order in any state.
func (book *OrderBook) Order(id uint64) (common.Order, bool) {
	order, ok := book.orders[id]
	if !ok {
		return common.Order{}, false
	}
	return *order.Clone(), true
}

// ActiveOrders pages through the matchable orders of one queue in creation
// order. A zero limit returns everything after offset.
func (book *OrderBook) ActiveOrders(asset common.Address, side common.Side, kind common.Kind, offset, limit int) []common.Order {
	now := book.ledger.Now()
	var out []common.Order
	skipped := 0
	for _, id := range book.queues[queueKey{asset, side, kind}] {
		order := book.orders[id]
		if order.Status != common.Active || order.ExpiredAt(now) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *order.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Fees is the running total of the protocol fee ledger.
func (book *OrderBook) Fees() *uint256.Int {
	return book.fees.Clone()
}

// LastID is the highest order id handed out so far.
func (book *OrderBook) LastID() uint64 {
	return book.lastID
}
