package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	tokenTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "token_transitions_total",
			Help:      "Count of token status changes by target status.",
		},
		[]string{"status"},
	)

	tokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "tokens_issued_total",
			Help:      "Count of tokens issued.",
		},
	)

	syncPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "sync_push_total",
			Help:      "Count of remote sync pushes by table, op and outcome.",
		},
		[]string{"table", "op", "outcome"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "login_total",
			Help:      "Count of login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clinic",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by method and status.",
		},
		[]string{"method", "status"},
	)

	adViews = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "ad_views_total",
			Help:      "Count of recorded ad video views.",
		},
	)

	displayClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clinic",
			Name:      "display_clients",
			Help:      "Connected display board sessions.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(tokenTransitions, tokensIssued, syncPushes, logins, httpDuration, httpRequests, adViews, displayClients)
	})
}

func IncTransition(status string) {
	tokenTransitions.WithLabelValues(status).Inc()
}

func IncTokenIssued() {
	tokensIssued.Inc()
}

func IncSync(table, op, outcome string) {
	syncPushes.WithLabelValues(table, op, outcome).Inc()
}

func IncLogin(outcome string) {
	logins.WithLabelValues(outcome).Inc()
}

func ObserveHTTP(method, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, status).Inc()
	httpDuration.WithLabelValues(method, status).Observe(elapsed.Seconds())
}

func IncAdView() {
	adViews.Inc()
}

func DisplayConnected() {
	displayClients.Inc()
}

func DisplayDisconnected() {
	displayClients.Dec()
}
