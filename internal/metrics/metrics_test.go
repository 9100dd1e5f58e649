package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"skoll/internal/common"
	"skoll/internal/events"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asset = common.HexToAddress("0x0000000000000000000000000000000000000a01")

func whole(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func TestCollector_Orders(t *testing.T) {
	c := NewCollector("test")
	c.Publish([]events.Event{
		{Seq: 1, Kind: events.OrderCreated, Asset: asset, Side: common.Buy},
		{Seq: 2, Kind: events.OrderCreated, Asset: asset, Side: common.Buy},
		{Seq: 3, Kind: events.OrderCreated, Asset: asset, Side: common.Sell},
		{Seq: 4, Kind: events.TradeSettled, Asset: asset, Value: whole(150), Fee: whole(2)},
		{Seq: 5, Kind: events.OrderFilled, Asset: asset, Side: common.Buy},
		{Seq: 6, Kind: events.OrderCancelled, Asset: asset, Side: common.Sell},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ordersActive.WithLabelValues(asset.Hex(), "buy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ordersActive.WithLabelValues(asset.Hex(), "sell")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tradesTotal.WithLabelValues(asset.Hex())))
	assert.Equal(t, 150.0, testutil.ToFloat64(c.tradeVolume.WithLabelValues(asset.Hex())))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.feesTotal.WithLabelValues(asset.Hex(), "trade")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("order_created")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.lastSeq))
}

func TestCollector_Pool(t *testing.T) {
	c := NewCollector("")
	c.Publish([]events.Event{
		{Seq: 1, Kind: events.CompartmentUpdated, Asset: asset, Compartment: common.AssetCompartment, Amount: whole(40)},
		{Seq: 2, Kind: events.EpochIncremented, Asset: asset, Compartment: common.CurrencyCompartment, Epoch: 3},
	})

	assert.Equal(t, 40.0, testutil.ToFloat64(c.inventory.WithLabelValues(asset.Hex(), "asset")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.epoch.WithLabelValues(asset.Hex(), "currency")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inventory.WithLabelValues(asset.Hex(), "currency")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test")
	c.Publish([]events.Event{{Seq: 1, Kind: events.OrderCreated, Asset: asset}})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_events_total"))
}

func TestFloat(t *testing.T) {
	assert.Equal(t, 0.0, Float(nil))
	assert.Equal(t, 1.5, Float(uint256.NewInt(1_500_000_000_000_000_000)))
}
