package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatroom_http_request_duration_seconds",
			Help:    "HTTP request duration (streams excluded)",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Room metrics
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_messages_posted_total",
			Help: "Total messages appended to the room log",
		},
	)

	PollRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_poll_requests_total",
			Help: "Total poll requests",
		},
		[]string{"result"}, // "messages" or "empty"
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatroom_stream_subscribers",
			Help: "Currently attached streaming subscribers",
		},
	)

	FanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_fanout_dropped_total",
			Help: "Fanout deliveries dropped or subscribers evicted on full queues",
		},
		[]string{"reason"},
	)

	// Security metrics
	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatroom_auth_failures_total",
			Help: "Requests rejected for a missing or wrong room password",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Tunnel metrics
	TunnelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatroom_tunnel_state",
			Help: "1 for the tunnel manager's current state, 0 otherwise",
		},
		[]string{"state"},
	)
)
