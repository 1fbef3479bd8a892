// Package metrics объявляет счётчики Prometheus для платежей и проверки доступа.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты проверки платежа.
const (
	VerifySuccess = "success"
	VerifyFailure = "failure"
	VerifyReplay  = "replay"
)

// Metrics набор счётчиков сервиса.
type Metrics struct {
	paymentVerifications *prometheus.CounterVec
	gateDecisions        *prometheus.CounterVec
	ordersCreated        *prometheus.CounterVec
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		paymentVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policy_summarizer",
			Name:      "payment_verifications_total",
			Help:      "Payment signature verifications by result.",
		}, []string{"result"}),
		gateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policy_summarizer",
			Name:      "gate_decisions_total",
			Help:      "Subscription gate decisions by reason.",
		}, []string{"reason"}),
		ordersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policy_summarizer",
			Name:      "orders_created_total",
			Help:      "Gateway orders by outcome.",
		}, []string{"outcome"}),
	}
}

// PaymentVerified учитывает результат проверки платежа.
func (m *Metrics) PaymentVerified(result string) {
	m.paymentVerifications.WithLabelValues(result).Inc()
}

// GateDecision учитывает решение о допуске.
func (m *Metrics) GateDecision(reason string) {
	m.gateDecisions.WithLabelValues(reason).Inc()
}

// OrderCreated учитывает попытку создания заказа.
func (m *Metrics) OrderCreated(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.ordersCreated.WithLabelValues(outcome).Inc()
}
