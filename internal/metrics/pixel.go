package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	placementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_total",
			Help:      "Pixel placement attempts by outcome.",
		},
		[]string{"result"},
	)

	feedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Number of live-feed subscriptions currently attached to the hub.",
		},
	)

	broadcastDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_delivered_total",
			Help:      "Pixel updates handed to subscriber buffers.",
		},
	)

	broadcastEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_evicted_total",
			Help:      "Subscribers dropped because their buffer was full.",
		},
	)

	historyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_events_total",
			Help:      "History log events by outcome (appended, failed, dropped).",
		},
		[]string{"result"},
	)

	historyBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_breaker_state",
			Help:      "History log circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
	)
)

// Placement outcomes.
const (
	ResultPlaced           = "placed"
	ResultInvalid          = "invalid_argument"
	ResultRateLimited      = "rate_limited"
	ResultStoreUnavailable = "store_unavailable"
	ResultUnauthenticated  = "unauthenticated"
)

// History outcomes.
const (
	HistoryAppended = "appended"
	HistoryFailed   = "failed"
	HistoryDropped  = "dropped"
)

func ObservePlacement(result string) {
	placementsTotal.WithLabelValues(result).Inc()
}

func SubscriberAdded()   { feedSubscribers.Inc() }
func SubscriberRemoved() { feedSubscribers.Dec() }

func BroadcastDelivered(n int) { broadcastDelivered.Add(float64(n)) }
func BroadcastEvicted()        { broadcastEvicted.Inc() }

func ObserveHistory(result string) {
	historyEvents.WithLabelValues(result).Inc()
}

func SetHistoryBreakerState(state int) {
	historyBreakerState.Set(float64(state))
}
