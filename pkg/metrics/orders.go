package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Outcome labels shared by the order pipeline counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// OrderMetrics tracks checkout, payment confirmation and notification activity.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	checkouts     *prometheus.CounterVec
	paid          prometheus.Counter
	oversold      *prometheus.CounterVec
	emails        *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
}

// NewOrderMetrics registers the order pipeline metrics on reg.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		paid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_paid_total",
			Help:      "Orders transitioned to paid by a payment confirmation.",
		}),
		oversold: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_oversold_units_total",
			Help:      "Units sold beyond available stock and clamped to zero, by product type.",
		}, []string{"product_type"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_emails_total",
			Help:      "Order notification dispatches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment notifications by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.checkouts, m.paid, m.oversold, m.emails, m.webhookEvents)
	return m
}

func (m *OrderMetrics) CheckoutStarted(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
}

func (m *OrderMetrics) OrderPaid() {
	if m == nil || m.paid == nil {
		return
	}
	m.paid.Inc()
}

// StockOversold records units that could not be covered by stock on hand.
// Individual products are identified in the accompanying log line.
func (m *OrderMetrics) StockOversold(productType string, units int) {
	if m == nil || m.oversold == nil || units <= 0 {
		return
	}
	m.oversold.WithLabelValues(labelValue(productType)).Add(float64(units))
}

func (m *OrderMetrics) EmailDispatched(kind, outcome string) {
	if m == nil || m.emails == nil {
		return
	}
	m.emails.WithLabelValues(labelValue(kind), outcome).Inc()
}

func (m *OrderMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(labelValue(eventType), outcome).Inc()
}

// Handler exposes the metrics gathered by g over HTTP.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
