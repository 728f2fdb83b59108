package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldmiles_readings_submitted_total",
			Help: "Odometer reading submissions by session and result",
		},
		[]string{"session", "result"},
	)

	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldmiles_reconciliations_total",
			Help: "Trip reconciliations by result",
		},
		[]string{"result"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldmiles_reconcile_duration_seconds",
			Help:    "Time spent folding a reading into its trip, including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	ApprovalsToggled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldmiles_trip_approvals_toggled_total",
			Help: "Approval toggles by resulting state",
		},
		[]string{"state"},
	)

	RequeueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldmiles_reconcile_requeue_depth",
			Help: "Readings waiting for a reconciliation retry",
		},
	)

	NegativeDistances = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldmiles_trips_negative_distance_total",
			Help: "Reconciliations whose evening reading was below the morning reading",
		},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldmiles_events_dropped_total",
			Help: "Audit events that never reached the event store, by reason",
		},
		[]string{"reason"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldmiles_api_request_duration_seconds",
			Help:    "HTTP request duration by route pattern and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(ReadingsSubmitted)
	prometheus.MustRegister(Reconciliations)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(ApprovalsToggled)
	prometheus.MustRegister(RequeueDepth)
	prometheus.MustRegister(NegativeDistances)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation and reports it to a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}
