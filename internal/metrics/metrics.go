package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "boost",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boost",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boost",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ordersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boost",
			Subsystem: "orders",
			Name:      "submitted_total",
			Help:      "Orders accepted for persistence.",
		},
		[]string{"game", "urgency"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boost",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions by outcome.",
		},
		[]string{"to", "outcome"},
	)

	quotedPrice = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boost",
			Subsystem: "orders",
			Name:      "quoted_price",
			Help:      "Price quoted at submission time.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"game"},
	)

	ticketsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "boost",
			Subsystem: "tickets",
			Name:      "created_total",
			Help:      "Support tickets filed.",
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boost",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Order events handed to the event bus.",
		},
		[]string{"type", "success"},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "boost",
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		},
	)

	importedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boost",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Records copied from the local store into Postgres.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ordersSubmitted,
		orderTransitions,
		quotedPrice,
		ticketsCreated,
		eventsPublished,
		wsClients,
		importedRecords,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Requests are labelled by their chi route pattern to keep cardinality bounded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordOrderSubmitted records a persisted order and its quoted price.
func RecordOrderSubmitted(game, urgency string, price int64) {
	ordersSubmitted.WithLabelValues(game, urgency).Inc()
	quotedPrice.WithLabelValues(game).Observe(float64(price))
}

// RecordTransition records the outcome of an order status change.
func RecordTransition(to, outcome string) {
	orderTransitions.WithLabelValues(to, outcome).Inc()
}

// RecordTicketCreated counts a filed support ticket.
func RecordTicketCreated() {
	ticketsCreated.Inc()
}

// RecordEventPublished counts an order event hand-off to the bus.
func RecordEventPublished(eventType string, success bool) {
	eventsPublished.WithLabelValues(eventType, strconv.FormatBool(success)).Inc()
}

// SetWebSocketClients reports the number of connected WebSocket clients.
func SetWebSocketClients(n int) {
	wsClients.Set(float64(n))
}

// RecordImported counts records copied by the legacy import worker.
func RecordImported(kind string, n int) {
	if n <= 0 {
		return
	}
	importedRecords.WithLabelValues(kind).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
