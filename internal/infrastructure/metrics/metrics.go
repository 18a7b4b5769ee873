package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mdfeed/internal/application/usecase/feed"
	"mdfeed/internal/domain"
)

const namespace = "mdfeed"

// Collector 作为 feed 监听器累计事件计数，并把 feed.Stats() 暴露成 gauge
type Collector struct {
	reg prometheus.Registerer

	ticks     prometheus.Counter
	events    *prometheus.CounterVec
	lastPrice *prometheus.GaugeVec
	tickLag   prometheus.Histogram
}

// New registers the feed metrics on reg. stats is polled on every scrape.
func New(reg prometheus.Registerer, stats func() feed.Snapshot) *Collector {
	f := promauto.With(reg)

	c := &Collector{
		reg: reg,
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticks accepted by the feed.",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Connection lifecycle events.",
		}, []string{"event"}), // connect/disconnect/error
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last traded price per instrument.",
		}, []string{"instrument_id"}),
		tickLag: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_lag_seconds",
			Help:      "Delay between a tick's observation time and its ingestion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms -> ~8s
		}),
	}

	gauge := func(name, help string, fn func(feed.Snapshot) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return fn(stats()) })
	}
	counter := func(name, help string, fn func(feed.Snapshot) float64) {
		f.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return fn(stats()) })
	}

	gauge("state", "Connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 error).",
		func(s feed.Snapshot) float64 { return float64(s.State) })
	gauge("subscribed_instruments", "Instruments in the subscription set.",
		func(s feed.Snapshot) float64 { return float64(s.Subscribed) })
	gauge("buffered_ticks", "Ticks held in the ring buffer.",
		func(s feed.Snapshot) float64 { return float64(s.Buffered) })
	gauge("cached_instruments", "Instruments in the latest-value cache.",
		func(s feed.Snapshot) float64 { return float64(s.Cached) })
	gauge("reconnect_attempts", "Reconnect attempts since the last successful connect.",
		func(s feed.Snapshot) float64 { return float64(s.ReconnectAttempts) })
	counter("malformed_ticks_total", "Payloads rejected as malformed.",
		func(s feed.Snapshot) float64 { return float64(s.MalformedTicks) })
	counter("listener_panics_total", "Listener invocations that panicked.",
		func(s feed.Snapshot) float64 { return float64(s.ListenerPanics) })

	return c
}

// TrackDropped exposes a drop counter owned by another component, e.g. the tick recorder queue.
func (c *Collector) TrackDropped(name string, fn func() uint64) {
	promauto.With(c.reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name + "_dropped_total",
		Help:      "Items dropped by " + name + ".",
	}, func() float64 { return float64(fn()) })
}

func (c *Collector) OnTick(t domain.Tick) {
	c.ticks.Inc()
	c.lastPrice.WithLabelValues(strconv.FormatInt(t.InstrumentID, 10)).Set(t.LastPrice)
	if lag := time.Since(t.ObservedAt); lag >= 0 {
		c.tickLag.Observe(lag.Seconds())
	}
}

func (c *Collector) OnConnect()         { c.events.WithLabelValues("connect").Inc() }
func (c *Collector) OnDisconnect()      { c.events.WithLabelValues("disconnect").Inc() }
func (c *Collector) OnError(msg string) { c.events.WithLabelValues("error").Inc() }

// OnEvict 缓存里被移除的合约同时删除 last_price 序列
func (c *Collector) OnEvict(ids []int64) {
	for _, id := range ids {
		c.lastPrice.DeleteLabelValues(strconv.FormatInt(id, 10))
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
