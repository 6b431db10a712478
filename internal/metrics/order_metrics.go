package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated     *prometheus.CounterVec
	checkoutRejected  prometheus.Counter
	transitions       *prometheus.CounterVec
	transitionsDenied prometheus.Counter
	scans             *prometheus.CounterVec
	paymentWebhooks   *prometheus.CounterVec

	// Гистограммы времени выполнения
	checkoutDuration   prometheus.Histogram
	fulfillmentLatency prometheus.Histogram

	// Счётчики событий timeline
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для заказов в работе
	activeOrders prometheus.Gauge
}

// NewOrderMetrics создаёт новый экземпляр метрик заказов.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "clubtab_orders_created_total",
			Help: "Total number of orders created grouped by payment method",
		}, []string{"payment_method"}),
		checkoutRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "clubtab_checkout_rejected_total",
			Help: "Total number of checkout requests rejected by validation",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "clubtab_order_transitions_total",
			Help: "Total number of successful order status transitions grouped by target status",
		}, []string{"to"}),
		transitionsDenied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "clubtab_order_transitions_denied_total",
			Help: "Total number of rejected order status transitions",
		}),
		scans: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "clubtab_token_scans_total",
			Help: "Total number of fulfillment token scans grouped by result",
		}, []string{"result"}),
		paymentWebhooks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "clubtab_payment_webhooks_total",
			Help: "Total number of payment gateway callbacks grouped by outcome",
		}, []string{"outcome"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "clubtab_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		fulfillmentLatency: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "clubtab_order_fulfillment_seconds",
			Help:    "Time from order creation to completion in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "clubtab_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "clubtab_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "clubtab_active_orders",
			Help: "Number of orders currently in a non-terminal status",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated(paymentMethod string) {
	m.ordersCreated.WithLabelValues(paymentMethod).Inc()
	m.activeOrders.Inc()
}

// RecordCheckoutRejected увеличивает счётчик отклонённых checkout.
func (m *OrderMetrics) RecordCheckoutRejected() {
	m.checkoutRejected.Inc()
}

// RecordTransition увеличивает счётчик успешных переходов статуса.
func (m *OrderMetrics) RecordTransition(to string) {
	m.transitions.WithLabelValues(to).Inc()
}

// RecordTransitionDenied увеличивает счётчик отклонённых переходов.
func (m *OrderMetrics) RecordTransitionDenied() {
	m.transitionsDenied.Inc()
}

// RecordScan увеличивает счётчик сканирований токена выдачи.
func (m *OrderMetrics) RecordScan(result string) {
	m.scans.WithLabelValues(result).Inc()
}

// RecordPaymentWebhook увеличивает счётчик callback платёжного шлюза.
func (m *OrderMetrics) RecordPaymentWebhook(outcome string) {
	m.paymentWebhooks.WithLabelValues(outcome).Inc()
}

// RecordCheckoutDuration записывает время выполнения checkout.
func (m *OrderMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordFulfillment фиксирует завершение заказа и время от создания до выдачи.
func (m *OrderMetrics) RecordFulfillment(duration time.Duration) {
	m.fulfillmentLatency.Observe(duration.Seconds())
}

// RecordOrderFinished уменьшает число активных заказов.
func (m *OrderMetrics) RecordOrderFinished() {
	m.activeOrders.Dec()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
