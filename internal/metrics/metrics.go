// Package metrics exposes the Prometheus collectors of the marketplace.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the bidding, reconciliation and
// notification layers.
type Recorder interface {
	RecordBidAdmitted(operation string)
	RecordBidRejected(reason string)
	RecordCASConflict()
	RecordRecompute()
	RecordReconcileCorrection()
	RecordNotificationSent(role string)
	RecordNotificationFailed(role string)
	RecordNotificationDuplicate()
	RecordSendLatency(duration time.Duration)
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	bidsAdmitted        *prometheus.CounterVec
	bidsRejected        *prometheus.CounterVec
	casConflicts        prometheus.Counter
	recomputes          prometheus.Counter
	reconcileCorrected  prometheus.Counter
	notificationsSent   *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec
	notificationsDup    prometheus.Counter
	sendLatency         prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bidsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_bids_admitted_total",
			Help: "Bids accepted by the aggregator, by operation.",
		}, []string{"operation"}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_bids_rejected_total",
			Help: "Bids refused by the validator, by rule.",
		}, []string{"reason"}),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_aggregate_cas_conflicts_total",
			Help: "Aggregate compare-and-swap attempts that lost a race.",
		}),
		recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_aggregate_recomputes_total",
			Help: "Aggregates rebuilt from the bid set.",
		}),
		reconcileCorrected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_reconcile_corrections_total",
			Help: "Drifted aggregates corrected by reconciliation.",
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_notifications_sent_total",
			Help: "Notification emails accepted by the provider, by recipient role.",
		}, []string{"role"}),
		notificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_notifications_failed_total",
			Help: "Notification emails abandoned after all attempts, by recipient role.",
		}, []string{"role"}),
		notificationsDup: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_notifications_duplicate_total",
			Help: "Change events dropped as duplicate deliveries.",
		}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketplace_email_send_latency_seconds",
			Help:    "Latency of a single email send attempt in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.bidsAdmitted,
		c.bidsRejected,
		c.casConflicts,
		c.recomputes,
		c.reconcileCorrected,
		c.notificationsSent,
		c.notificationsFailed,
		c.notificationsDup,
		c.sendLatency,
	)

	return c
}

func (c *Collector) RecordBidAdmitted(operation string) {
	c.bidsAdmitted.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordBidRejected(reason string) {
	c.bidsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordCASConflict() {
	c.casConflicts.Inc()
}

func (c *Collector) RecordRecompute() {
	c.recomputes.Inc()
}

func (c *Collector) RecordReconcileCorrection() {
	c.reconcileCorrected.Inc()
}

func (c *Collector) RecordNotificationSent(role string) {
	c.notificationsSent.WithLabelValues(role).Inc()
}

func (c *Collector) RecordNotificationFailed(role string) {
	c.notificationsFailed.WithLabelValues(role).Inc()
}

func (c *Collector) RecordNotificationDuplicate() {
	c.notificationsDup.Inc()
}

func (c *Collector) RecordSendLatency(duration time.Duration) {
	c.sendLatency.Observe(duration.Seconds())
}

// Nop discards every measurement. Used where no registry is configured.
type Nop struct{}

func (Nop) RecordBidAdmitted(string) {}
func (Nop) RecordBidRejected(string) {}
func (Nop) RecordCASConflict() {}
func (Nop) RecordRecompute() {}
func (Nop) RecordReconcileCorrection() {}
func (Nop) RecordNotificationSent(string) {}
func (Nop) RecordNotificationFailed(string) {}
func (Nop) RecordNotificationDuplicate() {}
func (Nop) RecordSendLatency(time.Duration) {}

// OrNop returns r, or Nop when r is nil
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Handler returns the HTTP handler serving the registry for scraping
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
