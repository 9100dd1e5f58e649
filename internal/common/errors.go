package common

import (
	"github.com/pkg/errors"
)

// Error classes. Every error returned by the book or the pool wraps exactly
// one of these; classify with errors.Is.
var (
	// ErrValidation is malformed input, rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrAuthorization is a caller lacking the required role.
	ErrAuthorization = errors.New("authorization error")
	// ErrState is an order or pool not in the state an operation requires.
	ErrState = errors.New("state error")
	// ErrTransfer is a failed asset movement. It aborts the whole call.
	ErrTransfer = errors.New("transfer failure")
)

var (
	ErrZeroAsset          = errors.Wrap(ErrValidation, "zero asset")
	ErrBaseCurrencyAsset  = errors.Wrap(ErrValidation, "base currency is not tradable")
	ErrAssetBlocked       = errors.Wrap(ErrValidation, "asset blocked")
	ErrZeroAmount         = errors.Wrap(ErrValidation, "zero amount")
	ErrZeroPrice          = errors.Wrap(ErrValidation, "zero price")
	ErrAmountOutOfBounds  = errors.Wrap(ErrValidation, "amount out of bounds")
	ErrTTLOutOfBounds     = errors.Wrap(ErrValidation, "ttl out of bounds")
	ErrInsufficientFunds  = errors.Wrap(ErrValidation, "insufficient funds attached")
	ErrUnexpectedValue    = errors.Wrap(ErrValidation, "currency attached to a sell order")
	ErrEmptyBatch         = errors.Wrap(ErrValidation, "empty batch")
	ErrBatchMismatch      = errors.Wrap(ErrValidation, "batch arrays differ in length")
	ErrInvalidBps         = errors.Wrap(ErrValidation, "basis points out of range")
	ErrInvalidCompartment = errors.Wrap(ErrValidation, "invalid compartment")
	ErrNoPair             = errors.Wrap(ErrValidation, "no external pair for asset")
	ErrDustDeposit        = errors.Wrap(ErrValidation, "deposit mints no shares")
	ErrDustWithdrawal     = errors.Wrap(ErrValidation, "withdrawal burns no shares")
	ErrOverflow           = errors.Wrap(ErrValidation, "arithmetic overflow")

	ErrNotOwner       = errors.Wrap(ErrAuthorization, "caller is not the order owner")
	ErrNotFulfiller   = errors.Wrap(ErrAuthorization, "caller is not an authorized fulfiller")
	ErrNotDistributor = errors.Wrap(ErrAuthorization, "caller is not a reward distributor")
	ErrNotOrderBook   = errors.Wrap(ErrAuthorization, "caller is not the order book")

	ErrOrderNotFound         = errors.Wrap(ErrState, "order not found")
	ErrOrderNotActive        = errors.Wrap(ErrState, "order not active")
	ErrOrderExpired          = errors.Wrap(ErrState, "order expired")
	ErrOrderNotExpired       = errors.Wrap(ErrState, "order not expired")
	ErrNothingToFill         = errors.Wrap(ErrState, "nothing left to fill")
	ErrSideMismatch          = errors.Wrap(ErrState, "side mismatch")
	ErrAssetMismatch         = errors.Wrap(ErrState, "asset mismatch")
	ErrKindMismatch          = errors.Wrap(ErrState, "execution kind mismatch")
	ErrSelfMatch             = errors.Wrap(ErrState, "orders share an owner")
	ErrPriceMismatch         = errors.Wrap(ErrState, "prices do not cross")
	ErrSlippage              = errors.Wrap(ErrState, "received less than the minimum")
	ErrInsufficientLiquidity = errors.Wrap(ErrState, "insufficient pool inventory")
	ErrNoShares              = errors.Wrap(ErrState, "epoch has no shares")
	ErrNoPosition            = errors.Wrap(ErrState, "no position")
	ErrUnknownEpoch          = errors.Wrap(ErrState, "unknown epoch")
	ErrDegenerateCompartment = errors.Wrap(ErrState, "compartment has shares but no accounted balance")
	ErrAccumulatorOverflow   = errors.Wrap(ErrState, "reward accumulator overflow")
	ErrReentrant             = errors.Wrap(ErrState, "reentrant call")

	ErrInsufficientBalance = errors.Wrap(ErrTransfer, "insufficient balance")
	ErrFallbackFailed      = errors.Wrap(ErrTransfer, "fallback execution failed")
)

// Code is the wire representation of an error class.
type Code uint8

const (
	CodeOK Code = iota
	CodeValidation
	CodeAuthorization
	CodeState
	CodeTransfer
	CodeInternal
)

// CodeOf maps an error onto its class.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrAuthorization):
		return CodeAuthorization
	case errors.Is(err, ErrState):
		return CodeState
	case errors.Is(err, ErrTransfer):
		return CodeTransfer
	}
	return CodeInternal
}

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeValidation:
		return "validation"
	case CodeAuthorization:
		return "authorization"
	case CodeState:
		return "state"
	case CodeTransfer:
		return "transfer"
	}
	return "internal"
}
