package net

import (
	"context"
	"testing"
	"time"

	"skoll/internal/common"
	"skoll/internal/engine"
	"skoll/internal/events"
	"skoll/internal/exchange"
	"skoll/internal/fixed"
	"skoll/internal/registry"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers ---

var (
	currency = common.HexToAddress("0x0000000000000000000000000000000000000c00")
	seller   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyer    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	keeper   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fixed.PriceScale)
}

func startServer(t *testing.T) string {
	t.Helper()
	bus := events.NewBus()
	reg := registry.NewStatic(registry.Addresses{
		OrderBook: common.HexToAddress("0x0000000000000000000000000000000000000b00"),
		Pool:      common.HexToAddress("0x0000000000000000000000000000000000000b01"),
		Fallback:  common.HexToAddress("0x0000000000000000000000000000000000000b02"),
	}, registry.WithFulfillers(keeper))
	x := exchange.New(exchange.Params{
		Engine: engine.Config{
			Currency: currency,
			FeeBps:   50,
			MinTTL:   time.Minute,
			MaxTTL:   time.Hour,
		},
		Registry: reg,
		Sink:     bus,
		Genesis: []exchange.Balance{
			{Owner: seller, Asset: token, Amount: units(10)},
			{Owner: buyer, Asset: currency, Amount: units(100)},
		},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	seq := exchange.NewSequencer(x, zerolog.Nop())
	seq.Start(ctx)

	srv := New("127.0.0.1:0", 2, seq, zerolog.Nop())
	bus.Subscribe(srv)
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server failed to start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		<-done
		_ = seq.Stop()
	})
	return srv.Addr().String()
}

func dial(t *testing.T, addr string, as common.Address) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr, as)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func sellOrder(c *Client) CreateOrderMessage {
	return CreateOrderMessage{
		BaseMessage: c.Base(CreateOrder),
		Side:        common.Sell,
		Kind:        common.Limit,
		Asset:       token,
		Amount:      units(2),
		Price:       units(5),
		TTL:         time.Hour,
	}
}

// --- Tests ---

func TestServer_Heartbeat(t *testing.T) {
	c := dial(t, startServer(t), seller)

	rep, err := c.Call(c.Base(Heartbeat))
	require.NoError(t, err)
	assert.Equal(t, ResultReport, rep.MessageType)
	assert.Equal(t, Heartbeat, rep.Request)
	assert.Equal(t, common.CodeOK, rep.Code)
}

func TestServer_CreateFillAndCancel(t *testing.T) {
	addr := startServer(t)
	s := dial(t, addr, seller)
	b := dial(t, addr, buyer)
	k := dial(t, addr, keeper)

	rep, err := s.Call(sellOrder(s))
	require.NoError(t, err)
	require.Len(t, rep.Values, 1)
	assert.Equal(t, uint64(1), rep.Values[0].Uint64())

	// 2 units at 5.0 plus 50 bps.
	rep, err = b.Call(CreateOrderMessage{
		BaseMessage: b.Base(CreateOrder),
		Side:        common.Buy,
		Kind:        common.Limit,
		Asset:       token,
		Amount:      units(2),
		Price:       units(5),
		TTL:         time.Hour,
		Value:       new(uint256.Int).Add(units(10), fixed.Bps(50).Of(units(10))),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rep.Values[0].Uint64())

	rep, err = k.Call(FulfillMessage{
		BaseMessage: k.Base(FulfillLimit),
		Matches:     []common.Match{{BuyID: 2, SellID: 1, Fill: units(1)}},
	})
	require.NoError(t, err)
	require.Len(t, rep.Values, 6)
	assert.Equal(t, uint64(2), rep.Values[0].Uint64())
	assert.Equal(t, uint64(1), rep.Values[1].Uint64())
	assert.Equal(t, units(1), rep.Values[2])
	assert.Equal(t, units(5), rep.Values[3])

	// Only the owner may cancel.
	rep, err = k.Call(OrderMessage{BaseMessage: k.Base(CancelOrder), OrderID: 1})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, common.CodeAuthorization, rep.Code)

	_, err = s.Call(OrderMessage{BaseMessage: s.Base(CancelOrder), OrderID: 1})
	assert.NoError(t, err)
}

func TestServer_ErrorCodes(t *testing.T) {
	c := dial(t, startServer(t), buyer)

	// A buy without funds attached.
	rep, err := c.Call(CreateOrderMessage{
		BaseMessage: c.Base(CreateOrder),
		Side:        common.Buy,
		Kind:        common.Limit,
		Asset:       token,
		Amount:      units(1),
		Price:       units(1),
		TTL:         time.Hour,
	})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, common.CodeValidation, rep.Code)
	assert.Contains(t, rep.Err, "insufficient funds")

	rep, err = c.Call(c.Base(MessageType(999)))
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, common.CodeValidation, rep.Code)

	// The session survives failed requests.
	_, err = c.Call(c.Base(Heartbeat))
	assert.NoError(t, err)
}

func TestServer_Subscribe(t *testing.T) {
	addr := startServer(t)
	sub := dial(t, addr, buyer)
	s := dial(t, addr, seller)

	_, err := sub.Call(sub.Base(Subscribe))
	require.NoError(t, err)

	received := make(chan events.Event, 16)
	sub.OnEvent = func(ev events.Event) { received <- ev }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Listen(ctx)

	_, err = s.Call(sellOrder(s))
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, events.OrderCreated, ev.Kind)
		assert.Equal(t, uint64(1), ev.OrderID)
		assert.Equal(t, seller, ev.Owner)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
