package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "partmig"
)

var (
	// TransfersTotal counts executed migration transfers on the destination.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Total number of migration transfers executed",
		},
		[]string{"type", "result"}, // type: move/copy, result: success/failure
	)

	// TransferDuration measures destination side replay time
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Time spent decoding and replaying a migration transfer",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"type"},
	)

	// TasksExecuted counts tasks replayed, by outcome
	TasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_executed_total",
			Help:      "Total number of migration tasks replayed",
		},
		[]string{"service", "result"},
	)

	// TaskCountMismatches counts transfers whose declared and decoded task counts differ
	TaskCountMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_count_mismatches_total",
			Help:      "Transfers whose declared task count differed from the decoded one",
		},
	)

	// PayloadBytes tracks compressed payload sizes built on the source
	PayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_payload_bytes",
			Help:      "Compressed migration payload size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		},
	)

	// QDBOperationDuration measures active migration registry calls
	QDBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "qdb_operation_duration_seconds",
			Help:      "Active migration registry operation latency",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"backend", "op"},
	)

	// ActiveMigrations tracks registered in-flight migrations on this member
	ActiveMigrations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_migrations",
			Help:      "Number of migrations registered as active on this member",
		},
	)

	// OperationsExecuted counts operations run by the partition executor
	OperationsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_executed_total",
			Help:      "Operations executed on partition threads",
		},
		[]string{"status"},
	)
)

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordTransfer records one finished transfer on the destination.
func RecordTransfer(migrationType string, d time.Duration, ok bool) {
	TransfersTotal.WithLabelValues(migrationType, result(ok)).Inc()
	TransferDuration.WithLabelValues(migrationType).Observe(d.Seconds())
}

func RecordTask(service string, ok bool) {
	TasksExecuted.WithLabelValues(service, result(ok)).Inc()
}

func RecordQDBOperation(backend, op string, d time.Duration) {
	QDBOperationDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

func RecordOperation(ok bool) {
	OperationsExecuted.WithLabelValues(result(ok)).Inc()
}
