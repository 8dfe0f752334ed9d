package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "hotiron"

// Metrics holds the service's Prometheus collectors on a private registry so
// that several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	auctions         *prometheus.CounterVec
	auctionDuration  prometheus.Histogram
	winningNetPrice  *prometheus.HistogramVec
	workerRejections prometheus.Counter
	rateLimited      prometheus.Counter
	activeStreams    prometheus.Gauge
	registryReloads  *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors, plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"route"},
		),
		auctions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auctions_total",
				Help:      "Auction runs by outcome.",
			},
			[]string{"outcome"},
		),
		auctionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "auction_duration_seconds",
				Help:      "Time to resolve and clear one auction.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		winningNetPrice: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "winning_net_price_per_ton",
				Help:      "Winning net price per ton in USD.",
				Buckets:   prometheus.LinearBuckets(500, 50, 12),
			},
			[]string{"eaf"},
		),
		workerRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "worker_pool_rejections_total",
				Help:      "Auction requests rejected because every worker was busy.",
			},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limited_requests_total",
				Help:      "Requests rejected by the per-client rate limit.",
			},
		),
		activeStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "reveal_streams_active",
				Help:      "Open bid reveal WebSocket connections.",
			},
		),
		registryReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "registry_reloads_total",
				Help:      "Seller registry reloads triggered over the admin API, by result.",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.auctions, m.auctionDuration, m.winningNetPrice,
		m.workerRejections, m.rateLimited, m.activeStreams, m.registryReloads,
	)
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) observeAuction(outcome string, d time.Duration) {
	m.auctions.WithLabelValues(outcome).Inc()
	m.auctionDuration.Observe(d.Seconds())
}

func (m *Metrics) observeWinner(netPricePerTon float64, eaf bool) {
	m.winningNetPrice.WithLabelValues(strconv.FormatBool(eaf)).Observe(netPricePerTon)
}
