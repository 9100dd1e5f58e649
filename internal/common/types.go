package common

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Address identifies owners, assets and components alike.
type Address = ethcommon.Address

// ZeroAddress is never a valid asset or owner.
var ZeroAddress Address

// BytesToAddress keeps the last 20 bytes of b.
func BytesToAddress(b []byte) Address {
	return ethcommon.BytesToAddress(b)
}

// HexToAddress parses a 0x-prefixed hex address. Malformed input yields a
// truncated or zero address; check with IsHexAddress first.
func HexToAddress(s string) Address {
	return ethcommon.HexToAddress(s)
}

func IsHexAddress(s string) bool {
	return ethcommon.IsHexAddress(s)
}

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// Opposite returns the side an order has to be matched against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Kind uint8

const (
	// Limit orders carry an exact price. When matched they settle at the
	// resting sell price, the buyer being refunded any improvement.
	Limit Kind = iota
	// Market orders carry a bound instead of a price: the highest price a
	// buyer will pay, or the lowest a seller will accept. The fulfiller
	// supplies the execution price.
	Market
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	}
	return "unknown"
}

type Status uint8

const (
	Active Status = iota
	Filled
	Cancelled
	Expired
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	return s != Active
}

// Compartment selects one of the two per-asset pool halves.
type Compartment uint8

const (
	// CurrencyCompartment holds base currency supplied against an asset.
	CurrencyCompartment Compartment = iota
	// AssetCompartment holds the traded asset itself.
	AssetCompartment
)

func (c Compartment) String() string {
	switch c {
	case CurrencyCompartment:
		return "currency"
	case AssetCompartment:
		return "asset"
	}
	return "unknown"
}

// Other returns the sibling compartment of the same asset.
func (c Compartment) Other() Compartment {
	if c == CurrencyCompartment {
		return AssetCompartment
	}
	return CurrencyCompartment
}

func (c Compartment) Valid() bool {
	return c == CurrencyCompartment || c == AssetCompartment
}

// ParseSide is the inverse of Side.String.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, errors.Wrapf(ErrValidation, "unknown side %q", s)
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "limit":
		return Limit, nil
	case "market":
		return Market, nil
	}
	return 0, errors.Wrapf(ErrValidation, "unknown kind %q", s)
}

// ParseCompartment is the inverse of Compartment.String.
func ParseCompartment(s string) (Compartment, error) {
	switch s {
	case "currency":
		return CurrencyCompartment, nil
	case "asset":
		return AssetCompartment, nil
	}
	return 0, errors.Wrapf(ErrInvalidCompartment, "%q", s)
}

// ParseAddress parses a 0x-prefixed hex address, rejecting malformed
// input.
func ParseAddress(s string) (Address, error) {
	if !IsHexAddress(s) {
		return ZeroAddress, errors.Wrapf(ErrValidation, "malformed address %q", s)
	}
	return HexToAddress(s), nil
}
