package promclient

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var OpenOrderBookGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "open_order_book",
		Help: "number of synced order books",
	},
)

var DepthUpdatesApplied = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depth_updates_applied_total",
		Help: "depth diff events merged into a book",
	},
)

var DepthUpdatesStale = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depth_updates_stale_total",
		Help: "depth diff events dropped as stale or duplicate",
	},
)

var DepthUpdateGaps = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "depth_update_gaps_total",
		Help: "depth diff events applied across a sequence gap",
	},
)

var ConnectedSubscribers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "connected_subscribers",
		Help: "currently connected websocket subscribers",
	},
)

var SubscriberPushes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "subscriber_pushes_total",
		Help: "envelopes pushed to subscribers",
	},
)

var SubscriberPushFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "subscriber_push_failures_total",
		Help: "failed pushes that evicted a subscriber",
	},
)

func StartPromClientServer(addr string) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(OpenOrderBookGauge)
	reg.MustRegister(DepthUpdatesApplied)
	reg.MustRegister(DepthUpdatesStale)
	reg.MustRegister(DepthUpdateGaps)
	reg.MustRegister(ConnectedSubscribers)
	reg.MustRegister(SubscriberPushes)
	reg.MustRegister(SubscriberPushFailures)
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)
	log.Printf("prometheus server listening at %s", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
