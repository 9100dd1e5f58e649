// Package metrics turns the committed event stream into Prometheus
// collectors.
package metrics

import (
	"net/http"

	"skoll/internal/events"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is an events.Sink that keeps exchange metrics.
type Collector struct {
	registry *prometheus.Registry

	eventsTotal  *prometheus.CounterVec
	ordersActive *prometheus.GaugeVec
	tradesTotal  *prometheus.CounterVec
	tradeVolume  *prometheus.CounterVec
	feesTotal    *prometheus.CounterVec
	inventory    *prometheus.GaugeVec
	epoch        *prometheus.GaugeVec
	lastSeq      prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "skoll"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed events by kind",
		},
		[]string{"kind"},
	)
	c.ordersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "orders_active",
			Help:      "Orders accepted and not yet filled, cancelled or expired",
		},
		[]string{"asset", "side"},
	)
	c.tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "trades_total",
			Help:      "Settled fills",
		},
		[]string{"asset"},
	)
	c.tradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "notional_total",
			Help:      "Settled notional in whole currency units",
		},
		[]string{"asset"},
	)
	c.feesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_total",
			Help:      "Fees retained and distributed, in whole units",
		},
		[]string{"asset", "kind"},
	)
	c.inventory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "inventory",
			Help:      "Raw balance of a compartment's current epoch, in whole units",
		},
		[]string{"asset", "compartment"},
	)
	c.epoch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "epoch",
			Help:      "Current epoch of a compartment",
		},
		[]string{"asset", "compartment"},
	)
	c.lastSeq = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_sequence",
		Help:      "Sequence number of the last committed event",
	})

	c.registry.MustRegister(
		c.eventsTotal, c.ordersActive, c.tradesTotal, c.tradeVolume,
		c.feesTotal, c.inventory, c.epoch, c.lastSeq,
	)
	return c
}

// Registry exposes the underlying registry, e.g. to add process collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Publish(evs []events.Event) {
	for _, ev := range evs {
		c.record(ev)
	}
}

func (c *Collector) record(ev events.Event) {
	c.eventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	c.lastSeq.Set(float64(ev.Seq))
	asset := ev.Asset.Hex()

	switch ev.Kind {
	case events.OrderCreated:
		c.ordersActive.WithLabelValues(asset, ev.Side.String()).Inc()
	case events.OrderFilled, events.OrderCancelled, events.OrderExpired:
		c.ordersActive.WithLabelValues(asset, ev.Side.String()).Dec()
	case events.TradeSettled:
		c.tradesTotal.WithLabelValues(asset).Inc()
		c.tradeVolume.WithLabelValues(asset).Add(Float(ev.Value))
		c.feesTotal.WithLabelValues(asset, "trade").Add(Float(ev.Fee))
	case events.FeeDistributed:
		c.feesTotal.WithLabelValues(asset, "distributed").Add(Float(ev.Amount))
	case events.CompartmentUpdated:
		c.inventory.WithLabelValues(asset, ev.Compartment.String()).Set(Float(ev.Amount))
	case events.EpochIncremented:
		c.epoch.WithLabelValues(asset, ev.Compartment.String()).Set(float64(ev.Epoch))
		c.inventory.WithLabelValues(asset, ev.Compartment.String()).Set(0)
	}
}

// Float converts a base-unit amount to whole units. Precision beyond a
// float64 is lost, which is fine for monitoring.
func Float(amount *uint256.Int) float64 {
	return fixed.ToDecimal(amount).InexactFloat64()
}

var _ events.Sink = (*Collector)(nil)

