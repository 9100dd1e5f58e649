package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"skoll/internal/common"
	"skoll/internal/engine"
	"skoll/internal/exchange"
	"skoll/internal/fixed"
	"skoll/internal/metrics"
	"skoll/internal/registry"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers ---

var (
	currency = common.HexToAddress("0x0000000000000000000000000000000000000c00")
	asset    = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fixed.PriceScale)
}

func newServer(t *testing.T) (*httptest.Server, *exchange.Sequencer) {
	t.Helper()
	reg := registry.NewStatic(registry.Addresses{
		OrderBook: common.HexToAddress("0x0000000000000000000000000000000000000b00"),
		Pool:      common.HexToAddress("0x0000000000000000000000000000000000000b01"),
		Fallback:  common.HexToAddress("0x0000000000000000000000000000000000000b02"),
	}, registry.WithPair(asset, common.HexToAddress("0x0000000000000000000000000000000000000e01")))

	collector := metrics.NewCollector("test")
	x := exchange.New(exchange.Params{
		Engine: engine.Config{
			Currency: currency,
			FeeBps:   30,
			MinTTL:   time.Minute,
			MaxTTL:   time.Hour,
		},
		Registry: reg,
		Sink:     collector,
		Genesis: []exchange.Balance{
			{Owner: alice, Asset: asset, Amount: units(10)},
			{Owner: bob, Asset: currency, Amount: units(10)},
		},
	}, zerolog.Nop())

	seq := exchange.NewSequencer(x, zerolog.Nop())
	seq.Start(context.Background())
	t.Cleanup(func() { _ = seq.Stop() })

	srv := httptest.NewServer(NewHandler(seq, collector.Handler(), zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv, seq
}

// seedCrossing rests a sell at 1.0 from alice and a buy at 2.0 from bob.
func seedCrossing(t *testing.T, seq *exchange.Sequencer) {
	t.Helper()
	err := seq.Do(context.Background(), func(x *exchange.Exchange) error {
		if _, err := x.Book.Create(alice, engine.CreateRequest{
			Side: common.Sell, Kind: common.Limit, Asset: asset,
			Amount: units(1), Price: units(1), TTL: time.Hour,
		}); err != nil {
			return err
		}
		_, err := x.Book.Create(bob, engine.CreateRequest{
			Side: common.Buy, Kind: common.Limit, Asset: asset,
			Amount: units(1), Price: units(2), TTL: time.Hour, Value: units(3),
		})
		return err
	})
	require.NoError(t, err)
}

func get(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// --- Tests ---

func TestHealth(t *testing.T) {
	srv, seq := newServer(t)
	seedCrossing(t, seq)

	var body map[string]any
	assert.Equal(t, http.StatusOK, get(t, srv, "/api/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["last_order_id"])
}

func TestGetOrder(t *testing.T) {
	srv, seq := newServer(t)
	seedCrossing(t, seq)

	var view OrderView
	require.Equal(t, http.StatusOK, get(t, srv, "/api/orders/2", &view))
	assert.Equal(t, uint64(2), view.ID)
	assert.Equal(t, bob.Hex(), view.Owner)
	assert.Equal(t, "buy", view.Side)
	assert.Equal(t, "limit", view.Kind)
	assert.Equal(t, "active", view.Status)
	assert.Equal(t, "2", view.Price.Decimal)
	assert.Equal(t, units(2).Dec(), view.Price.Base)
	assert.Equal(t, "1", view.Remaining.Decimal)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/orders/99", nil))
}

func TestGetBook(t *testing.T) {
	srv, seq := newServer(t)
	seedCrossing(t, seq)

	var view BookView
	require.Equal(t, http.StatusOK, get(t, srv, "/api/book/"+asset.Hex()+"/limit", &view))
	require.Len(t, view.Bids, 1)
	require.Len(t, view.Asks, 1)
	assert.Equal(t, uint64(2), view.Bids[0].ID)
	assert.Equal(t, uint64(1), view.Asks[0].ID)
	require.Len(t, view.Matches, 1)
	assert.Equal(t, MatchView{BuyID: 2, SellID: 1, Fill: amount(units(1))}, view.Matches[0])

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/book/"+asset.Hex()+"/stop", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/book/0x12/limit", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/book/"+asset.Hex()+"/limit?limit=-1", nil))
}

func TestGetFeesAndBalance(t *testing.T) {
	srv, seq := newServer(t)
	seedCrossing(t, seq)

	var fees struct {
		Currency string `json:"currency"`
		Fees     Amount `json:"fees"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/fees", &fees))
	assert.Equal(t, currency.Hex(), fees.Currency)
	assert.Equal(t, "0.006", fees.Fees.Decimal)

	// Bob attached 3.0 and got the excess back: 10 - 2.006.
	var balance struct {
		Balance Amount `json:"balance"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/balances/"+bob.Hex()+"/"+currency.Hex(), &balance))
	assert.Equal(t, "7.994", balance.Balance.Decimal)
}

func TestGetCompartment(t *testing.T) {
	srv, seq := newServer(t)
	err := seq.Do(context.Background(), func(x *exchange.Exchange) error {
		_, err := x.Pool.Deposit(alice, asset, common.AssetCompartment, units(4))
		return err
	})
	require.NoError(t, err)

	var view CompartmentView
	require.Equal(t, http.StatusOK, get(t, srv, "/api/pool/"+asset.Hex()+"/asset", &view))
	assert.Equal(t, uint64(0), view.Epoch)
	assert.True(t, view.Current)
	assert.Equal(t, 1, view.Providers)
	assert.Equal(t, "4", view.Raw.Decimal)
	assert.Equal(t, "4", view.Accounted.Decimal)

	var pos PositionView
	require.Equal(t, http.StatusOK, get(t, srv, "/api/pool/"+asset.Hex()+"/asset/positions/"+alice.Hex(), &pos))
	assert.Equal(t, "4", pos.Contributed.Decimal)
	assert.Equal(t, "0", pos.PendingReward.Decimal)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/pool/"+asset.Hex()+"/asset/positions/"+bob.Hex(), nil))
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/pool/"+asset.Hex()+"/asset?epoch=7", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/pool/"+asset.Hex()+"/both", nil))
}

func TestMetricsRoute(t *testing.T) {
	srv, seq := newServer(t)
	seedCrossing(t, seq)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStoppedSequencer(t *testing.T) {
	srv, seq := newServer(t)
	require.NoError(t, seq.Stop())

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/api/health", nil))
}
