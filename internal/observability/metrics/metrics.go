package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "homecare_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	draftTotal     *prometheus.CounterVec
	draftLatency   *prometheus.HistogramVec
	draftCustomers prometheus.Histogram

	commitTotal   *prometheus.CounterVec
	commitLatency *prometheus.HistogramVec
	eventsBilled  prometheus.Counter

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	surchargeCache *prometheus.CounterVec

	outboxPublishTotal   *prometheus.CounterVec
	outboxPublishLatency *prometheus.HistogramVec
	outboxDispatchTotal  *prometheus.CounterVec
	outboxDispatchEvents *prometheus.CounterVec
	outboxDispatchLat    *prometheus.HistogramVec
)

// Init registers billing metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		draftTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "draft_bills_total",
				Help: "Total draft billing runs by result",
			},
			[]string{"result"},
		)
		draftLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "draft_bills_latency_seconds",
				Help:    "Draft billing run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		draftCustomers = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "draft_bills_customers",
				Help:    "Customers with a draft bill per run",
				Buckets: prometheus.ExponentialBuckets(1, 4, 7),
			},
		)

		commitTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_commit_total",
				Help: "Total bill commits by result",
			},
			[]string{"result"},
		)
		commitLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_commit_latency_seconds",
				Help:    "Bill commit latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		eventsBilled = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_billed_total",
				Help: "Interventions flagged as billed",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_export_total",
				Help: "Total bill exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_export_latency_seconds",
				Help:    "Bill export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		surchargeCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "surcharge_cache_total",
				Help: "Surcharge cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox inserts by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox insert latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Total outbox relay runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_events_total",
				Help: "Outbox records relayed by outcome",
			},
			[]string{"outcome"},
		)
		outboxDispatchLat = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox relay latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			draftTotal,
			draftLatency,
			draftCustomers,
			commitTotal,
			commitLatency,
			eventsBilled,
			exportTotal,
			exportLatency,
			surchargeCache,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchEvents,
			outboxDispatchLat,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveDraftBills records a draft run.
func ObserveDraftBills(result string, duration time.Duration, customers int) {
	if result == "" {
		result = resultSuccess
	}
	if draftTotal != nil {
		draftTotal.WithLabelValues(result).Inc()
	}
	if draftLatency != nil {
		draftLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if draftCustomers != nil && result == resultSuccess {
		draftCustomers.Observe(float64(customers))
	}
}

// ObserveBillCommit records commit latency and result.
func ObserveBillCommit(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if commitTotal != nil {
		commitTotal.WithLabelValues(result).Inc()
	}
	if commitLatency != nil {
		commitLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddEventsBilled increments the billed interventions counter.
func AddEventsBilled(count int) {
	if count <= 0 {
		return
	}
	if eventsBilled != nil {
		eventsBilled.Add(float64(count))
	}
}

// ObserveBillExport records export latency and result.
func ObserveBillExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncSurchargeCache counts a surcharge cache lookup.
func IncSurchargeCache(hit bool) {
	if surchargeCache == nil {
		return
	}
	if hit {
		surchargeCache.WithLabelValues("hit").Inc()
		return
	}
	surchargeCache.WithLabelValues("miss").Inc()
}

// ObserveOutboxPublish records an outbox insert.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a relay run.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLat != nil {
		outboxDispatchLat.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchEvents != nil {
		if sent > 0 {
			outboxDispatchEvents.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDispatchEvents.WithLabelValues("failed").Add(float64(failed))
		}
		if dlq > 0 {
			outboxDispatchEvents.WithLabelValues("dlq").Add(float64(dlq))
		}
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
