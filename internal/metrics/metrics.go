// Package metrics exposes Prometheus instruments for the ledger engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerEntriesCreated counts committed entries by entry type.
var LedgerEntriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "duebook_ledger_entries_created_total",
	Help: "Ledger entries committed, by entry type",
}, []string{"entry_type"})

// LedgerMutationFailures counts rejected or failed ledger mutations by error code.
var LedgerMutationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "duebook_ledger_mutation_failures_total",
	Help: "Ledger mutations that did not commit, by error code",
}, []string{"operation", "code"})

// LedgerMutationDuration tracks time spent inside the balance transaction.
var LedgerMutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "duebook_ledger_mutation_duration_seconds",
	Help:    "Duration of ledger mutation transactions",
	Buckets: prometheus.DefBuckets,
}, []string{"operation"})

// AuditQueueDepth is the number of audit records waiting to be written.
var AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "duebook_audit_queue_depth",
	Help: "Audit records buffered for asynchronous persistence",
})

// AuditRecordsDropped counts audit records lost to a full queue or a write error.
var AuditRecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "duebook_audit_records_dropped_total",
	Help: "Audit records that were not persisted",
}, []string{"reason"})

// DashboardCacheResults counts dashboard cache lookups by outcome.
var DashboardCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "duebook_dashboard_cache_results_total",
	Help: "Dashboard metrics cache lookups by result",
}, []string{"result"})
