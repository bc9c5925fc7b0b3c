package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Valuation metrics
	ValuationResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_valuation_resolutions_total",
			Help: "Total number of pool valuations by resolved tier",
		},
		[]string{"tier"}, // market-adjusted|onchain|db|calculated|unavailable
	)

	ValuationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolvault_valuation_duration_seconds",
			Help:    "Valuation resolve duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"tier"},
	)

	// Ledger metrics
	LedgerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_ledger_calls_total",
			Help: "Total number of ledger RPC calls",
		},
		[]string{"method", "status"}, // status: success|error
	)

	LedgerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolvault_ledger_latency_seconds",
			Help:    "Ledger RPC latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method"},
	)

	// Share accounting metrics
	Transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_transactions_total",
			Help: "Total number of executed share transactions",
		},
		[]string{"kind", "status"}, // kind: deposit|withdrawal
	)

	// Pool state gauges, refreshed on every authoritative valuation
	PoolNAV = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poolvault_pool_nav_usd",
			Help: "Last resolved pool NAV in USD",
		},
	)

	PoolShares = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poolvault_pool_total_shares",
			Help: "Last resolved total share count",
		},
	)

	PoolSharePrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poolvault_pool_share_price_usd",
			Help: "Last resolved share price in USD",
		},
	)

	PoolMembers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poolvault_pool_member_count",
			Help: "Last resolved member count",
		},
	)

	// Reconciliation metrics
	DriftDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_drift_detections_total",
			Help: "Total number of cache-ledger drift detections",
		},
		[]string{"field"},
	)

	ResyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_resync_runs_total",
			Help: "Total number of full resync runs",
		},
		[]string{"status"}, // status: success|error
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolvault_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poolvault_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolvault_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// Event stream metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolvault_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(ValuationResolutions)
	prometheus.MustRegister(ValuationDuration)

	prometheus.MustRegister(LedgerCalls)
	prometheus.MustRegister(LedgerLatency)

	prometheus.MustRegister(Transactions)

	prometheus.MustRegister(PoolNAV)
	prometheus.MustRegister(PoolShares)
	prometheus.MustRegister(PoolSharePrice)
	prometheus.MustRegister(PoolMembers)

	prometheus.MustRegister(DriftDetections)
	prometheus.MustRegister(ResyncRuns)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	prometheus.MustRegister(KafkaMessages)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordValuation records a resolved valuation
func RecordValuation(tier string, duration time.Duration) {
	ValuationResolutions.WithLabelValues(tier).Inc()
	ValuationDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// RecordLedgerCall records a ledger RPC call
func RecordLedgerCall(method string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	LedgerCalls.WithLabelValues(method, status).Inc()
	LedgerLatency.WithLabelValues(method).Observe(latency.Seconds())
}

// RecordTransaction records an executed share transaction
func RecordTransaction(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Transactions.WithLabelValues(kind, status).Inc()
}

// SetPoolState refreshes the pool state gauges
func SetPoolState(navUSD, totalShares, sharePriceUSD float64, memberCount int) {
	PoolNAV.Set(navUSD)
	PoolShares.Set(totalShares)
	PoolSharePrice.Set(sharePriceUSD)
	PoolMembers.Set(float64(memberCount))
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
