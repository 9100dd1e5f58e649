// Package events defines the records the book and the pool emit for
// off-chain fulfillers and indexers. Events are buffered for the duration
// of a call and only published once the call commits, in emission order.
package events

import (
	"time"

	"skoll/internal/common"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type Kind uint16

const (
	OrderCreated Kind = iota + 1
	OrderCancelled
	OrderExpired
	OrderFilled
	OrderPartiallyFilled
	TradeSettled
	LiquidityDeposited
	LiquidityWithdrawn
	FeeDistributed
	FeeClaimed
	CompartmentUpdated
	EpochIncremented
	CrossRewardCredited
)

var kindNames = map[Kind]string{
	OrderCreated:         "order_created",
	OrderCancelled:       "order_cancelled",
	OrderExpired:         "order_expired",
	OrderFilled:          "order_filled",
	OrderPartiallyFilled: "order_partially_filled",
	TradeSettled:         "trade_settled",
	LiquidityDeposited:   "liquidity_deposited",
	LiquidityWithdrawn:   "liquidity_withdrawn",
	FeeDistributed:       "fee_distributed",
	FeeClaimed:           "fee_claimed",
	CompartmentUpdated:   "compartment_updated",
	EpochIncremented:     "epoch_incremented",
	CrossRewardCredited:  "cross_reward_credited",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Kinds lists every known kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := OrderCreated; k <= CrossRewardCredited; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Event is a flat record; fields that do not apply to a kind are left zero.
// Seq, ID and Timestamp are stamped by the ledger at commit.
type Event struct {
	Seq         uint64             // Commit order, starting at 1
	ID          uuid.UUID          //
	Kind        Kind               //
	Timestamp   time.Time          //
	OrderID     uint64             // Order events; the buy order on trades
	CounterID   uint64             // The sell order on trades
	Owner       common.Address     // Order owner or liquidity provider
	Asset       common.Address     //
	Side        common.Side        //
	OrderKind   common.Kind        //
	Compartment common.Compartment // Pool events
	Epoch       uint64             // Pool events
	Amount      *uint256.Int       // Volume, deposit, withdrawal or reward amount
	Price       *uint256.Int       // Order or settlement price
	Value       *uint256.Int       // Currency moved or secondary amount
	Fee         *uint256.Int       //
}

// Sink consumes committed events. Publish is called once per committed call
// with events in emission order; implementations must not retain the slice.
type Sink interface {
	Publish(events []Event)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(events []Event)

func (f SinkFunc) Publish(events []Event) { f(events) }

// Discard drops every event.
var Discard Sink = SinkFunc(func([]Event) {})
