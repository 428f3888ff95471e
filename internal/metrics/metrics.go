package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservd",
			Name:      "booking_created_total",
			Help:      "Count of booking create attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservd",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	bookingPreempted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservd",
			Name:      "booking_preempted_total",
			Help:      "Count of bookings removed by preemption.",
		},
	)

	historyOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservd",
			Name:      "history_ops_total",
			Help:      "Count of undo/redo operations by kind.",
		},
		[]string{"kind"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingCancelled, bookingPreempted, historyOps)
	})
}

func IncBookingCreated(outcome string) {
	bookingCreated.WithLabelValues(outcome).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncBookingPreempted() {
	bookingPreempted.Inc()
}

func IncHistoryOp(kind string) {
	historyOps.WithLabelValues(kind).Inc()
}
