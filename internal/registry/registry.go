// Package registry is the read-only directory the book and the pool consult
// for component addresses and permission flags. Mutating it is an
// administrative concern outside this module; Static is built once from
// configuration.
package registry

import (
	"skoll/internal/common"
)

type Registry interface {
	IsAssetBlocked(asset common.Address) bool
	IsAuthorizedFulfiller(caller common.Address) bool
	IsRewardDistributor(caller common.Address) bool
	// PairOf returns the external pair reference linked to an asset's pool
	// compartments, if any.
	PairOf(asset common.Address) (common.Address, bool)

	OrderBook() common.Address
	Pool() common.Address
	Fallback() common.Address
}

// Addresses names the deployed components.
type Addresses struct {
	OrderBook common.Address
	Pool      common.Address
	Fallback  common.Address
}

type Static struct {
	addresses    Addresses
	blocked      map[common.Address]struct{}
	fulfillers   map[common.Address]struct{}
	distributors map[common.Address]struct{}
	pairs        map[common.Address]common.Address
}

// Option configures a Static registry.
type Option func(*Static)

func WithBlocked(assets ...common.Address) Option {
	return func(s *Static) {
		for _, a := range assets {
			s.blocked[a] = struct{}{}
		}
	}
}

func WithFulfillers(callers ...common.Address) Option {
	return func(s *Static) {
		for _, c := range callers {
			s.fulfillers[c] = struct{}{}
		}
	}
}

func WithDistributors(callers ...common.Address) Option {
	return func(s *Static) {
		for _, c := range callers {
			s.distributors[c] = struct{}{}
		}
	}
}

// WithPair links an asset to its external pair reference.
func WithPair(asset, pair common.Address) Option {
	return func(s *Static) {
		s.pairs[asset] = pair
	}
}

func NewStatic(addresses Addresses, opts ...Option) *Static {
	s := &Static{
		addresses:    addresses,
		blocked:      make(map[common.Address]struct{}),
		fulfillers:   make(map[common.Address]struct{}),
		distributors: make(map[common.Address]struct{}),
		pairs:        make(map[common.Address]common.Address),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Static) IsAssetBlocked(asset common.Address) bool {
	_, ok := s.blocked[asset]
	return ok
}

func (s *Static) IsAuthorizedFulfiller(caller common.Address) bool {
	_, ok := s.fulfillers[caller]
	return ok
}

func (s *Static) IsRewardDistributor(caller common.Address) bool {
	_, ok := s.distributors[caller]
	return ok
}

func (s *Static) PairOf(asset common.Address) (common.Address, bool) {
	pair, ok := s.pairs[asset]
	return pair, ok && pair != common.ZeroAddress
}

func (s *Static) OrderBook() common.Address { return s.addresses.OrderBook }
func (s *Static) Pool() common.Address      { return s.addresses.Pool }
func (s *Static) Fallback() common.Address  { return s.addresses.Fallback }
