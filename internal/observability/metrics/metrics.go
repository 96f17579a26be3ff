package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	creditGrants       *prometheus.CounterVec
	creditDebits       prometheus.Counter
	creditDenials      prometheus.Counter
	entitlementDenials *prometheus.CounterVec
	monthlyResets      prometheus.Counter
	webhookEvents      *prometheus.CounterVec
	rateLimit          *prometheus.CounterVec
	ledgerDrift        prometheus.Counter
}

// New registers the domain counters on the default prometheus registry.
func New() *Metrics {
	return &Metrics{
		creditGrants: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costlens_credit_grants_total",
			Help: "Credit grants applied, by ledger entry type.",
		}, []string{"type"}),
		creditDebits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "costlens_credit_debits_total",
			Help: "Successful credit debits.",
		}),
		creditDenials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "costlens_insufficient_credit_denials_total",
			Help: "Operations denied for insufficient credits.",
		}),
		entitlementDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costlens_entitlement_denials_total",
			Help: "Operations denied by plan limits, by feature.",
		}, []string{"feature"}),
		monthlyResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "costlens_monthly_credit_resets_total",
			Help: "Monthly credit allotment resets applied.",
		}),
		webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costlens_webhook_events_total",
			Help: "Payment webhook events processed, by event type.",
		}, []string{"event_type"}),
		rateLimit: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "costlens_rate_limit_total",
			Help: "Rate limiter decisions, by outcome.",
		}, []string{"outcome"}),
		ledgerDrift: promauto.NewCounter(prometheus.CounterOpts{
			Name: "costlens_ledger_drift_detected_total",
			Help: "Users whose stored balance disagreed with their ledger.",
		}),
	}
}

func (m *Metrics) RecordCreditGrant(entryType string) {
	if m == nil {
		return
	}
	m.creditGrants.WithLabelValues(strings.TrimSpace(entryType)).Inc()
}

func (m *Metrics) RecordCreditDebit() {
	if m == nil {
		return
	}
	m.creditDebits.Inc()
}

func (m *Metrics) RecordCreditDenial() {
	if m == nil {
		return
	}
	m.creditDenials.Inc()
}

func (m *Metrics) RecordEntitlementDenial(feature string) {
	if m == nil {
		return
	}
	m.entitlementDenials.WithLabelValues(strings.TrimSpace(feature)).Inc()
}

func (m *Metrics) RecordMonthlyReset() {
	if m == nil {
		return
	}
	m.monthlyResets.Inc()
}

func (m *Metrics) RecordWebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(strings.TrimSpace(eventType)).Inc()
}

func (m *Metrics) RecordRateLimit(allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.rateLimit.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordLedgerDrift() {
	if m == nil {
		return
	}
	m.ledgerDrift.Inc()
}
