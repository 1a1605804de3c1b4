package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dmclient"

// Collector holds the client-side counters of the thread synchronizer.
type Collector struct {
	EventsReceived  *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	HistoryPages    prometheus.Counter
	StaleDiscarded  prometheus.Counter
	FeedReconnects  prometheus.Counter
	PurchaseResults *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_received_total",
			Help:      "Live feed events accepted, by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_dropped_total",
			Help:      "Live feed frames dropped as malformed or unknown.",
		}),
		HistoryPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_pages_total",
			Help:      "History pages merged into the thread.",
		}),
		StaleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_discarded_total",
			Help:      "Responses and events discarded because the conversation changed.",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnects_total",
			Help:      "Live feed reconnect attempts.",
		}),
		PurchaseResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Media purchase attempts, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			c.EventsReceived,
			c.EventsDropped,
			c.HistoryPages,
			c.StaleDiscarded,
			c.FeedReconnects,
			c.PurchaseResults,
		)
	}
	return c
}
