// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	MessagesSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerchat_messages_saved_total",
			Help: "Messages persisted, by kind (user or assistant).",
		},
		[]string{"kind"},
	)

	AssistantRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerchat_assistant_requests_total",
			Help: "Assistant completions, by outcome.",
		},
		[]string{"outcome"},
	)

	RateLimitRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meerchat_ratelimit_requests_total",
		Help: "Requests checked by the posting rate limiter.",
	})

	RateLimitLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meerchat_ratelimit_limited_total",
		Help: "Requests rejected by the posting rate limiter.",
	})

	ChangeFeedSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meerchat_changefeed_subscribers",
		Help: "Active change feed subscriptions.",
	})

	ChangeFeedDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meerchat_changefeed_dropped_total",
		Help: "Change feed events dropped because a subscriber queue was full.",
	})

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerchat_http_requests_total",
			Help: "HTTP requests, by route pattern and status code.",
		},
		[]string{"route", "status"},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "meerchat_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesSaved,
		AssistantRequests,
		RateLimitRequests,
		RateLimitLimited,
		ChangeFeedSubscribers,
		ChangeFeedDropped,
		HTTPRequests,
		heapAlloc,
	)
}

// ObserveHTTP counts one request against its route pattern.
func ObserveHTTP(route string, status int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the default registry on fasthttp.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}
