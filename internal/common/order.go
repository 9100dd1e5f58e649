package common

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

type Order struct {
	ID         uint64       // Monotonic order id, starting at 1
	Owner      Address      // Who owns this order
	Side       Side         // Order side
	Kind       Kind         // Limit or market
	Asset      Address      // Traded asset, priced in base currency
	Amount     *uint256.Int // Total asset volume requested
	Price      *uint256.Int // Limit price, or bound for market orders
	Filled     *uint256.Int // Volume filled so far
	Expiration time.Time    // Order may no longer be matched from this instant
	CreatedAt  time.Time    // Time of arrival into the book
	Status     Status       //
}

// Remaining is the unfilled volume.
func (o *Order) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(o.Amount, o.Filled)
}

// ExpiredAt reports whether the order can no longer be matched at now.
func (o *Order) ExpiredAt(now time.Time) bool {
	return !now.Before(o.Expiration)
}

// Clone returns a deep copy safe to hand out of the book.
func (o *Order) Clone() *Order {
	c := *o
	c.Amount = o.Amount.Clone()
	c.Price = o.Price.Clone()
	c.Filled = o.Filled.Clone()
	return &c
}

func (o Order) String() string {
	return fmt.Sprintf(
		`ID:            %d
Owner:         %s
Side:          %v
Kind:          %v
Asset:         %s
Price:         %s
Filled:        %s (Total: %s)
Status:        %v
CreatedAt:     %v
Expiration:    %v`,
		o.ID,
		o.Owner.Hex(),
		o.Side,
		o.Kind,
		o.Asset.Hex(),
		o.Price.Dec(),
		o.Filled.Dec(),
		o.Amount.Dec(),
		o.Status,
		o.CreatedAt.Format(time.RFC3339),
		o.Expiration.Format(time.RFC3339),
	)
}
