package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: components built without metrics just skip observation.
type Metrics struct {
	CheckoutAttempts  *prometheus.CounterVec
	StockReservations *prometheus.CounterVec
	ReservationsSwept prometheus.Counter
	OrderTransitions  *prometheus.CounterVec
	Requests          *prometheus.CounterVec
	LatencyMS         *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

func New(service string, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		CheckoutAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "checkout_attempts_total",
			Help:      "Checkout placements by outcome.",
		}, []string{"outcome"}),
		StockReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "stock_reservations_total",
			Help:      "Stock reservation calls by result.",
		}, []string{"result"}),
		ReservationsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "reservations_swept_total",
			Help:      "Expired reservations released by the sweeper.",
		}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"to"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		gatherer: reg,
	}
	reg.MustRegister(m.CheckoutAttempts, m.StockReservations, m.ReservationsSwept,
		m.OrderTransitions, m.Requests, m.LatencyMS)
	return m
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Reservation(result string) {
	if m == nil {
		return
	}
	m.StockReservations.WithLabelValues(result).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReservationsSwept.Add(float64(n))
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) Request(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(took.Milliseconds()))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
