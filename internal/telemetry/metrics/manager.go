package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests            *prometheus.CounterVec
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter
	CounterToggles             *prometheus.CounterVec
	CounterDroppedEntries      *prometheus.CounterVec
	CounterLocatorHits         *prometheus.CounterVec
	CounterLocatorNotFound     prometheus.Counter
	CounterItemNotFound        prometheus.Counter
	CounterVersionConflicts    prometheus.Counter
	CounterSeededRecords       prometheus.Counter
	CounterDetailsCache        *prometheus.CounterVec
	CounterEventsPublished     *prometheus.CounterVec

	// gauges
	GaugeRequests   prometheus.Gauge
	GaugeLifeSignal prometheus.Gauge

	// histograms
	HistogramRequestDuration *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("coachprogress", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("coachprogress", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})
	counterToggles := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "item_toggles",
		Help:      "The total number of item toggles, by category and resulting state",
	}, []string{"category", "state"})
	counterDroppedEntries := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "normalization_dropped_entries",
		Help:      "Persisted container entries that could not be resolved to an item",
	}, []string{"table", "container"})
	counterLocatorHits := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "locator_hits",
		Help:      "Progress records found, by the lookup strategy that found them",
	}, []string{"strategy"})
	counterLocatorNotFound := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "locator_not_found",
		Help:      "Progress lookups that exhausted all strategies",
	})
	counterItemNotFound := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "toggle_item_not_found",
		Help:      "Toggles of items absent from both containers of the located record",
	})
	counterVersionConflicts := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "toggle_version_conflicts",
		Help:      "Toggles rejected because the record changed since it was read",
	})
	counterSeededRecords := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "seeded_records",
		Help:      "Progress records materialized on enrollment start",
	})
	counterDetailsCache := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "item_details_cache",
		Help:      "Item details lookups, by cache layer and result",
	}, []string{"layer", "result"})
	counterEventsPublished := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "events_published",
		Help:      "Progress events handed to the publisher, by result",
	}, []string{"result"})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})

	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})

	return &Manager{
		CounterRequests:            counterRequests,
		CounterHandleRequestPanic:  counterHandleRequestPanic,
		CounterRateLimitedRequests: counterRateLimitedRequests,
		CounterToggles:             counterToggles,
		CounterDroppedEntries:      counterDroppedEntries,
		CounterLocatorHits:         counterLocatorHits,
		CounterLocatorNotFound:     counterLocatorNotFound,
		CounterItemNotFound:        counterItemNotFound,
		CounterVersionConflicts:    counterVersionConflicts,
		CounterSeededRecords:       counterSeededRecords,
		CounterDetailsCache:        counterDetailsCache,
		CounterEventsPublished:     counterEventsPublished,
		GaugeRequests:              gaugeRequests,
		GaugeLifeSignal:            gaugeLifeSignal,
		HistogramRequestDuration:   histogramRequestDuration,
	}
}
