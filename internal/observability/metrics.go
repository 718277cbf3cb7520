package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rider_client"

var (
	ChannelEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "channel_events_total", Help: "Channel events delivered to handlers"},
		[]string{"event"},
	)
	ChannelReconnects = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "channel_reconnects_total", Help: "Channel dial attempts after a lost or failed connection"})
	ChannelConnected  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "channel_connected", Help: "1 while the event channel is connected"})

	PanelTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "panel_transitions_total", Help: "Panel becoming the active surface"},
		[]string{"panel"},
	)
	FallbackCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "fallback_calls_total", Help: "Fallback dispatch calls by result"},
		[]string{"result"},
	)
	InvalidTripPayloads = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "invalid_trip_payloads_total", Help: "Shared trip payloads rejected by invariant checks"})

	CollaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_request_duration_seconds",
			Help:      "REST collaborator latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)

	PositionsReported = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "positions_reported_total", Help: "Rider positions written to a sink"},
		[]string{"sink"},
	)
	PositionReportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "position_report_errors_total", Help: "Rider position sink failures"},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
