package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsCreated counts created diagnostic sessions by action type.
	SessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehiclediag_sessions_created_total",
			Help: "Total number of diagnostic sessions created.",
		},
		[]string{"action"},
	)

	// SessionsClaimed counts successful PENDING->PROCESSING claims.
	SessionsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vehiclediag_sessions_claimed_total",
			Help: "Total number of sessions claimed by devices.",
		},
	)

	// SessionsSwept counts PROCESSING sessions failed by the stale sweep.
	SessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vehiclediag_sessions_swept_total",
			Help: "Total number of stale sessions moved to FAILED by the poll sweep.",
		},
	)

	// SessionsCompleted counts terminal transitions by outcome.
	SessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehiclediag_sessions_finished_total",
			Help: "Total number of sessions reaching a terminal state.",
		},
		[]string{"status"}, // COMPLETED / FAILED
	)

	// HeartbeatsReceived counts accepted device heartbeats by transport.
	HeartbeatsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehiclediag_heartbeats_total",
			Help: "Total number of accepted device heartbeats.",
		},
		[]string{"transport"}, // http / mqtt
	)

	// LiveFramesPushed counts live-data frames by result.
	LiveFramesPushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehiclediag_livedata_frames_total",
			Help: "Total number of live data frames pushed by devices.",
		},
		[]string{"result"}, // stored / discarded
	)
)

func init() {
	prometheus.MustRegister(
		SessionsCreated,
		SessionsClaimed,
		SessionsSwept,
		SessionsCompleted,
		HeartbeatsReceived,
		LiveFramesPushed,
	)
}

func RegisterRoutes(r *mux.Router) {
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
