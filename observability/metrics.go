// Package observability provides paychledgerd's Prometheus registry, a
// lazily-initialised singleton per concern, mirroring the teacher's
// ModuleMetrics/Payoutd pattern.
package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type operationMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

type admissionMetrics struct {
	quarantines *prometheus.CounterVec
	reorgFlips  prometheus.Counter
}

var (
	operationOnce sync.Once
	operationReg  *operationMetrics

	admissionOnce sync.Once
	admissionReg  *admissionMetrics
)

// Operations returns the registry tracking every operation the daemon
// serves: the ten public operations plus /list_quarantined.
func Operations() *operationMetrics {
	operationOnce.Do(func() {
		operationReg = &operationMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paychledger",
				Subsystem: "ledger",
				Name:      "requests_total",
				Help:      "Total ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paychledger",
				Subsystem: "ledger",
				Name:      "errors_total",
				Help:      "Total ledger operation errors segmented by operation and kind.",
			}, []string{"operation", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "paychledger",
				Subsystem: "ledger",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(operationReg.requests, operationReg.errors, operationReg.latency)
	})
	return operationReg
}

// Observe records the outcome of a ledger operation.
func (m *operationMetrics) Observe(operation string, duration time.Duration, errKind string) {
	if m == nil {
		return
	}
	op := labelOrUnknown(operation)
	outcome := "success"
	if errKind != "" {
		outcome = "error"
		m.errors.WithLabelValues(op, errKind).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// Admission returns the registry tracking state-update admission outcomes.
func Admission() *admissionMetrics {
	admissionOnce.Do(func() {
		admissionReg = &admissionMetrics{
			quarantines: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "paychledger",
				Subsystem: "admission",
				Name:      "quarantines_total",
				Help:      "Count of state updates quarantined, segmented by reason.",
			}, []string{"reason"}),
			reorgFlips: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "paychledger",
				Subsystem: "reorg",
				Name:      "flips_total",
				Help:      "Count of chain events whose block_is_valid flipped via set_recent_blocks.",
			}),
		}
		prometheus.MustRegister(admissionReg.quarantines, admissionReg.reorgFlips)
	})
	return admissionReg
}

// RecordQuarantine increments the quarantine counter for reason.
func (m *admissionMetrics) RecordQuarantine(reason string) {
	if m == nil {
		return
	}
	m.quarantines.WithLabelValues(labelOrUnknown(reason)).Inc()
}

// RecordReorgFlips adds n flipped events to the reorg counter.
func (m *admissionMetrics) RecordReorgFlips(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reorgFlips.Add(float64(n))
}

func labelOrUnknown(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
