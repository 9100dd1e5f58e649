// Package ledger holds token balances for every account and runs each
// state-mutating call as one atomic unit.
//
// Components register an undo step for every mutation they make inside
// Atomic. If the call fails, undo steps run in reverse and the events the
// call emitted are dropped; if it succeeds, its events are stamped and
// published to the sink in emission order.
package ledger

import (
	"time"

	"skoll/internal/common"
	"skoll/internal/events"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type balanceKey struct {
	asset common.Address
	owner common.Address
}

type Ledger struct {
	balances map[balanceKey]*uint256.Int
	supply   map[common.Address]*uint256.Int

	// Some book keeping for the call in progress.
	depth   int
	undo    []func()
	pending []events.Event

	seq  uint64
	sink events.Sink
	now  func() time.Time
	log  zerolog.Logger
}

func New(sink events.Sink, now func() time.Time, log zerolog.Logger) *Ledger {
	if sink == nil {
		sink = events.Discard
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		balances: make(map[balanceKey]*uint256.Int),
		supply:   make(map[common.Address]*uint256.Int),
		sink:     sink,
		now:      now,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Resume continues event numbering after seq, so a journal written by an
// earlier run keeps increasing sequence numbers.
func (l *Ledger) Resume(seq uint64) {
	l.seq = seq
}

// Seq is the sequence number of the last committed event.
func (l *Ledger) Seq() uint64 {
	return l.seq
}

// Now is the caller-visible clock every component reads time from.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Atomic runs fn as one all-or-nothing unit. Calls nest: an inner failure
// unwinds only its own steps, but it is returned to the outer call, which
// normally propagates it and unwinds the rest. Events are published only
// when the outermost call commits.
func (l *Ledger) Atomic(fn func() error) (err error) {
	undoMark, eventMark := len(l.undo), len(l.pending)
	l.depth++

	defer func() {
		l.depth--
		if r := recover(); r != nil {
			l.rollback(undoMark, eventMark)
			panic(r)
		}
		if err != nil {
			l.rollback(undoMark, eventMark)
			return
		}
		if l.depth == 0 {
			l.commit()
		}
	}()

	return fn()
}

// InCall reports whether an Atomic call is in progress.
func (l *Ledger) InCall() bool {
	return l.depth > 0
}

// OnRollback registers an undo step for a mutation made in the current
// call. Outside a call it is a no-op: such mutations are permanent.
func (l *Ledger) OnRollback(undo func()) {
	if l.depth == 0 {
		return
	}
	l.undo = append(l.undo, undo)
}

// Emit buffers an event until the current call commits. Outside a call the
// event is published immediately.
func (l *Ledger) Emit(ev events.Event) {
	l.pending = append(l.pending, ev)
	if l.depth == 0 {
		l.commit()
	}
}

func (l *Ledger) rollback(undoMark, eventMark int) {
	for i := len(l.undo) - 1; i >= undoMark; i-- {
		l.undo[i]()
	}
	l.undo = l.undo[:undoMark]
	l.pending = l.pending[:eventMark]
	l.log.Debug().Int("depth", l.depth).Msg("call rolled back")
}

func (l *Ledger) commit() {
	l.undo = l.undo[:0]
	if len(l.pending) == 0 {
		return
	}

	now := l.now()
	for i := range l.pending {
		l.seq++
		l.pending[i].Seq = l.seq
		l.pending[i].ID = uuid.New()
		l.pending[i].Timestamp = now
	}
	committed := l.pending
	l.pending = nil
	l.sink.Publish(committed)
}

// BalanceOf returns a copy of owner's balance of asset.
func (l *Ledger) BalanceOf(asset, owner common.Address) *uint256.Int {
	if b, ok := l.balances[balanceKey{asset, owner}]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// Supply is the total amount of asset ever minted into the ledger.
func (l *Ledger) Supply(asset common.Address) *uint256.Int {
	if s, ok := l.supply[asset]; ok {
		return s.Clone()
	}
	return new(uint256.Int)
}

// Mint credits new units of asset to owner. It models funds arriving from
// outside the exchange, such as genesis balances or a bridge deposit.
func (l *Ledger) Mint(asset, to common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	l.set(balanceKey{asset, to}, new(uint256.Int).Add(l.BalanceOf(asset, to), amount))

	prev := l.Supply(asset)
	l.supply[asset] = new(uint256.Int).Add(prev, amount)
	l.OnRollback(func() { l.supply[asset] = prev })
}

// Transfer moves amount of asset between two accounts. A short balance is a
// TransferFailure; nothing is moved.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}

	balance := l.BalanceOf(asset, from)
	if balance.Lt(amount) {
		return errors.Wrapf(common.ErrInsufficientBalance,
			"%s holds %s of %s, needs %s", from.Hex(), balance.Dec(), asset.Hex(), amount.Dec())
	}

	l.set(balanceKey{asset, from}, new(uint256.Int).Sub(balance, amount))
	l.set(balanceKey{asset, to}, new(uint256.Int).Add(l.BalanceOf(asset, to), amount))
	return nil
}

func (l *Ledger) set(key balanceKey, value *uint256.Int) {
	prev, existed := l.balances[key]
	l.balances[key] = value
	l.OnRollback(func() {
		if existed {
			l.balances[key] = prev
		} else {
			delete(l.balances, key)
		}
	})
}
