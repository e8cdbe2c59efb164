package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
//
// Every Record* helper is safe to call on a nil *Metrics.
type Metrics struct {
	// Tronscan Metrics
	tronscanRequestsTotal   *prometheus.CounterVec
	tronscanRequestDuration *prometheus.HistogramVec
	tronscanRateLimitHits   *prometheus.CounterVec
	tronscanRecordsPerFetch *prometheus.HistogramVec

	// Transfer Processing Metrics
	recordsFetchedTotal  *prometheus.CounterVec
	recordsDroppedTotal  *prometheus.CounterVec
	transferVerdictTotal *prometheus.CounterVec

	// Notification Metrics
	notificationsTotal       *prometheus.CounterVec
	notificationSendDuration *prometheus.HistogramVec

	// Loop Metrics
	cycleDuration     *prometheus.HistogramVec
	cycleRunsTotal    *prometheus.CounterVec
	seenSetSize       *prometheus.GaugeVec
	startOfInterestTs *prometheus.GaugeVec

	// Store Metrics
	storeOperationDuration *prometheus.HistogramVec
	storeOperationsTotal   *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Tronscan Metrics
		tronscanRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tronscan_requests_total",
				Help: "Total number of Tronscan requests by candidate and status",
			},
			[]string{"candidate", "status"},
		),
		tronscanRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tronscan_request_duration_seconds",
				Help:    "Duration of Tronscan requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 15.0},
			},
			[]string{"candidate"},
		),
		tronscanRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tronscan_rate_limit_hits_total",
				Help: "Total number of Tronscan rate limit hits (429 errors)",
			},
			[]string{"candidate"},
		),
		tronscanRecordsPerFetch: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tronscan_records_per_fetch",
				Help:    "Number of records returned by a successful Tronscan candidate",
				Buckets: []float64{1, 5, 10, 20, 50, 100},
			},
			[]string{"candidate"},
		),

		// Transfer Processing Metrics
		recordsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_records_fetched_total",
				Help: "Total number of raw transfer records fetched",
			},
			[]string{"watch_address"},
		),
		recordsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_records_dropped_total",
				Help: "Total number of raw records dropped during normalization",
			},
			[]string{"watch_address", "reason"},
		),
		transferVerdictTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_verdicts_total",
				Help: "Total number of classified transfers by verdict",
			},
			[]string{"watch_address", "verdict"},
		),

		// Notification Metrics
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Total number of notification attempts by status",
			},
			[]string{"kind", "status"},
		),
		notificationSendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_send_duration_seconds",
				Help:    "Duration of notification sends in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"kind"},
		),

		// Loop Metrics
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_cycle_duration_seconds",
				Help:    "Duration of ingestion cycles in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"watch_address", "status"},
		),
		cycleRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_cycles_total",
				Help: "Total number of ingestion cycles",
			},
			[]string{"watch_address", "status"},
		),
		seenSetSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_seen_set_size",
				Help: "Number of transaction ids in the seen set",
			},
			[]string{"watch_address"},
		),
		startOfInterestTs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_start_of_interest_seconds",
				Help: "Start-of-interest instant as a unix timestamp, 0 if unset",
			},
			[]string{"watch_address"},
		),

		// Store Metrics
		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dedup_store_operation_duration_seconds",
				Help:    "Duration of dedup store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"backend", "operation"},
		),
		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_store_operations_total",
				Help: "Total number of dedup store operations",
			},
			[]string{"backend", "operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Tronscan metric helpers

// RecordTronscanRequest records one candidate attempt with duration.
// A 429 status additionally counts as a rate limit hit.
func (m *Metrics) RecordTronscanRequest(candidate string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	m.tronscanRequestsTotal.WithLabelValues(candidate, statusCodeToString(statusCode)).Inc()
	m.tronscanRequestDuration.WithLabelValues(candidate).Observe(duration)
	if statusCode == 429 {
		m.tronscanRateLimitHits.WithLabelValues(candidate).Inc()
	}
}

// RecordTronscanRecords records the size of the list a candidate returned.
func (m *Metrics) RecordTronscanRecords(candidate string, count int) {
	if m == nil {
		return
	}
	m.tronscanRecordsPerFetch.WithLabelValues(candidate).Observe(float64(count))
}

// Transfer processing metric helpers

// RecordRecordsFetched records raw records returned by a fetch.
func (m *Metrics) RecordRecordsFetched(watchAddress string, count int) {
	if m == nil {
		return
	}
	m.recordsFetchedTotal.WithLabelValues(watchAddress).Add(float64(count))
}

// RecordRecordDropped records a record the normalizer rejected.
func (m *Metrics) RecordRecordDropped(watchAddress, reason string) {
	if m == nil {
		return
	}
	m.recordsDroppedTotal.WithLabelValues(watchAddress, reason).Inc()
}

// RecordVerdict records a classifier verdict.
func (m *Metrics) RecordVerdict(watchAddress, verdict string) {
	if m == nil {
		return
	}
	m.transferVerdictTotal.WithLabelValues(watchAddress, verdict).Inc()
}

// Notification metric helpers

// RecordNotification records a notification attempt with duration.
func (m *Metrics) RecordNotification(kind string, err error, duration float64) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, errorStatus(err)).Inc()
	m.notificationSendDuration.WithLabelValues(kind).Observe(duration)
}

// Loop metric helpers

// RecordCycle records an ingestion cycle duration and outcome.
func (m *Metrics) RecordCycle(watchAddress, status string, duration float64) {
	if m == nil {
		return
	}
	m.cycleDuration.WithLabelValues(watchAddress, status).Observe(duration)
	m.cycleRunsTotal.WithLabelValues(watchAddress, status).Inc()
}

// RecordSeenSetSize records the current seen-set size.
func (m *Metrics) RecordSeenSetSize(watchAddress string, size int) {
	if m == nil {
		return
	}
	m.seenSetSize.WithLabelValues(watchAddress).Set(float64(size))
}

// RecordStartOfInterest records the start-of-interest instant in epoch milliseconds.
func (m *Metrics) RecordStartOfInterest(watchAddress string, ms int64) {
	if m == nil {
		return
	}
	m.startOfInterestTs.WithLabelValues(watchAddress).Set(float64(ms) / 1000)
}

// Store metric helpers

// RecordStoreOperation records a dedup store operation with duration.
func (m *Metrics) RecordStoreOperation(backend, operation string, duration float64, err error) {
	if m == nil {
		return
	}
	m.storeOperationDuration.WithLabelValues(backend, operation).Observe(duration)
	m.storeOperationsTotal.WithLabelValues(backend, operation, errorStatus(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func errorStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code == 0:
		return "transport_error"
	case code == 429:
		return "429"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
