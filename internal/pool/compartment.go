package pool

import (
	"skoll/internal/common"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
)

type compartmentKey struct {
	asset common.Address
	side  common.Compartment
}

// compartment is the tagged epoch state of one pool half. Only the current
// epoch accepts deposits and serves executions; earlier epochs are sealed
// and only serve withdrawals and claims of their own positions.
type compartment struct {
	epoch  uint64
	epochs map[uint64]*EpochState
}

func newCompartment() *compartment {
	return &compartment{
		epochs: map[uint64]*EpochState{0: newEpochState()},
	}
}

func (c *compartment) current() *EpochState {
	return c.epochs[c.epoch]
}

// EpochState is the accounting of one compartment during one epoch.
type EpochState struct {
	Accounted     *uint256.Int // Principal, excluding undistributed reward dust
	Raw           *uint256.Int // Inventory actually held
	TotalShares   *uint256.Int //
	AccReward     *uint256.Int // Own-asset reward per share, scaled by RewardScale
	RewardBalance *uint256.Int // Own-asset reward held for claims
	AccCross      *uint256.Int // Cross-asset reward per share, scaled by RewardScale
	CrossBalance  *uint256.Int // Cross-asset reward held for claims

	positions map[common.Address]*Position
}

func newEpochState() *EpochState {
	return &EpochState{
		Accounted:     fixed.Zero(),
		Raw:           fixed.Zero(),
		TotalShares:   fixed.Zero(),
		AccReward:     fixed.Zero(),
		RewardBalance: fixed.Zero(),
		AccCross:      fixed.Zero(),
		CrossBalance:  fixed.Zero(),
		positions:     make(map[common.Address]*Position),
	}
}

// scalars copies every field except the positions.
func (s *EpochState) scalars() EpochState {
	return EpochState{
		Accounted:     s.Accounted.Clone(),
		Raw:           s.Raw.Clone(),
		TotalShares:   s.TotalShares.Clone(),
		AccReward:     s.AccReward.Clone(),
		RewardBalance: s.RewardBalance.Clone(),
		AccCross:      s.AccCross.Clone(),
		CrossBalance:  s.CrossBalance.Clone(),
	}
}

// snapshot is a deep copy, positions included.
func (s *EpochState) snapshot() EpochState {
	out := s.scalars()
	out.positions = make(map[common.Address]*Position, len(s.positions))
	for owner, pos := range s.positions {
		out.positions[owner] = pos.clone()
	}
	return out
}

func (s *EpochState) restore(saved EpochState) {
	s.Accounted = saved.Accounted
	s.Raw = saved.Raw
	s.TotalShares = saved.TotalShares
	s.AccReward = saved.AccReward
	s.RewardBalance = saved.RewardBalance
	s.AccCross = saved.AccCross
	s.CrossBalance = saved.CrossBalance
}

// Providers is the number of positions opened in this epoch.
func (s *EpochState) Providers() int {
	return len(s.positions)
}

func (s *EpochState) position(owner common.Address) *Position {
	pos, ok := s.positions[owner]
	if !ok {
		pos = newPosition()
		s.positions[owner] = pos
	}
	return pos
}

// settle moves everything accrued since the last debt roll into the
// position's pending balances.
func (s *EpochState) settle(pos *Position) {
	pos.PendingReward = new(uint256.Int).Add(pos.PendingReward,
		fixed.SubFloor(accrued(pos.Shares, s.AccReward), pos.RewardDebt))
	pos.PendingCross = new(uint256.Int).Add(pos.PendingCross,
		fixed.SubFloor(accrued(pos.Shares, s.AccCross), pos.CrossDebt))
}

// roll resets the reward debts at the position's current share count.
func (s *EpochState) roll(pos *Position) {
	pos.RewardDebt = accrued(pos.Shares, s.AccReward)
	pos.CrossDebt = accrued(pos.Shares, s.AccCross)
}

// accrued is shares*acc/RewardScale, rounded down.
func accrued(shares, acc *uint256.Int) *uint256.Int {
	return fixed.MustMulDiv(shares, acc, fixed.RewardScale)
}

// perShare is amount*RewardScale/totalShares, rounded down, with the part
// of amount that the increment actually distributes.
func perShare(amount, totalShares *uint256.Int) (delta, distributed *uint256.Int, ok bool) {
	delta, ok = fixed.MulDiv(amount, fixed.RewardScale, totalShares)
	if !ok {
		return nil, nil, false
	}
	distributed = fixed.MustMulDiv(delta, totalShares, fixed.RewardScale)
	return delta, distributed, true
}

// Position is one provider's stake in one compartment epoch.
type Position struct {
	Contributed   *uint256.Int
	Shares        *uint256.Int
	RewardDebt    *uint256.Int
	PendingReward *uint256.Int
	CrossDebt     *uint256.Int
	PendingCross  *uint256.Int
}

func newPosition() *Position {
	return &Position{
		Contributed:   fixed.Zero(),
		Shares:        fixed.Zero(),
		RewardDebt:    fixed.Zero(),
		PendingReward: fixed.Zero(),
		CrossDebt:     fixed.Zero(),
		PendingCross:  fixed.Zero(),
	}
}

func (p *Position) clone() *Position {
	return &Position{
		Contributed:   p.Contributed.Clone(),
		Shares:        p.Shares.Clone(),
		RewardDebt:    p.RewardDebt.Clone(),
		PendingReward: p.PendingReward.Clone(),
		CrossDebt:     p.CrossDebt.Clone(),
		PendingCross:  p.PendingCross.Clone(),
	}
}
