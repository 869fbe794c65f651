// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/adiadia/approval-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	initOnce sync.Once

	transitionsTotalCounter  *prometheus.CounterVec
	batchItemsTotalCounter   *prometheus.CounterVec
	transitionConflicts      prometheus.Counter
	boxQueryDurationMetric   *prometheus.HistogramVec
	documentsSubmittedMetric *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		transitionsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_transitions_total",
				Help: "Total number of document operations by action and result.",
			},
			[]string{"action", "result"},
		)

		batchItemsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_batch_items_total",
				Help: "Total number of batch items processed by action and outcome.",
			},
			[]string{"action", "outcome"},
		)

		transitionConflicts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "approval_transition_conflicts_total",
				Help: "Total number of transitions lost to a concurrent update.",
			},
		)

		boxQueryDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "approval_box_query_duration_seconds",
				Help:    "Duration of box list and count queries in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"box"},
		)

		documentsSubmittedMetric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_documents_submitted_total",
				Help: "Total number of submitted documents by work type.",
			},
			[]string{"work_type"},
		)

		prometheus.MustRegister(
			transitionsTotalCounter,
			batchItemsTotalCounter,
			transitionConflicts,
			boxQueryDurationMetric,
			documentsSubmittedMetric,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, action := range []string{"SUBMIT", "APPROVE", "REJECT", "WITHDRAW"} {
			transitionsTotalCounter.WithLabelValues(action, ResultOK)
			transitionsTotalCounter.WithLabelValues(action, ResultError)
		}

		for _, action := range []domain.ResultCode{domain.ResultApprove, domain.ResultReject} {
			batchItemsTotalCounter.WithLabelValues(string(action), ResultOK)
			batchItemsTotalCounter.WithLabelValues(string(action), ResultError)
		}
	})
}

func IncTransition(action, result string) {
	Init()
	transitionsTotalCounter.WithLabelValues(action, result).Inc()
}

func IncBatchItem(action, outcome string) {
	Init()
	batchItemsTotalCounter.WithLabelValues(action, outcome).Inc()
}

func IncTransitionConflict() {
	Init()
	transitionConflicts.Inc()
}

func ObserveBoxQuery(box string, d time.Duration) {
	Init()
	boxQueryDurationMetric.WithLabelValues(box).Observe(d.Seconds())
}

func IncSubmitted(workType string) {
	Init()
	documentsSubmittedMetric.WithLabelValues(workType).Inc()
}
