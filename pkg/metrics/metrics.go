// Copyright 2026 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "datarecord"

	// Record operations.
	OpLoad   = "load"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpNoop   = "noop"

	// Cross-reference cache outcomes.
	XRefHit  = "hit"
	XRefMiss = "miss"
)

var (
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_errors_total",
			Help:      "Total number of fatal errors by component and operation",
		},
		[]string{"component", "operation"},
	)

	recordOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_operations_total",
			Help:      "Record lifecycle operations by class and kind",
		},
		[]string{"class", "operation"},
	)

	lockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for named locks",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"backend", "acquired"},
	)

	ddlStatements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_ddl_statements_total",
			Help:      "DDL statements issued by schema reconciliation",
		},
		[]string{"table"},
	)

	reconcileTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "schema_reconcile_duration_milliseconds",
			Help:      "Time taken to reconcile one table (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.99: 0.01,
			},
		},
		[]string{"table"},
	)

	xrefLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xref_lookups_total",
			Help:      "Cross-reference cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	xrefBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xref_batch_fetches_total",
			Help:      "Bulk label fetches issued to populate the cross-reference cache",
		},
	)
)

// IncFatal counts a fatal error.
func IncFatal(component, operation string) {
	errorCounter.WithLabelValues(component, operation).Inc()
}

// IncRecordOp counts a record lifecycle operation.
func IncRecordOp(class, operation string) {
	recordOps.WithLabelValues(class, operation).Inc()
}

// ObserveLockWait records how long an acquisition waited and whether it succeeded.
func ObserveLockWait(backend string, d time.Duration, acquired bool) {
	label := "false"
	if acquired {
		label = "true"
	}

	lockWait.WithLabelValues(backend, label).Observe(d.Seconds())
}

// IncDDL counts one DDL statement against table.
func IncDDL(table string) {
	ddlStatements.WithLabelValues(table).Inc()
}

// ObserveReconcile records the duration of one table reconciliation.
func ObserveReconcile(table string, d time.Duration) {
	reconcileTime.WithLabelValues(table).Observe(float64(d.Milliseconds()))
}

// IncXRef counts a cross-reference cache lookup outcome.
func IncXRef(outcome string) {
	xrefLookups.WithLabelValues(outcome).Inc()
}

// IncXRefBatch counts a bulk label fetch.
func IncXRefBatch() {
	xrefBatches.Inc()
}
