package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_jobs_total",
			Help: "Job lifecycle counter by stage and channel",
		},
		// stage: enqueued|queued|parked|cancelled|sent|completed|requeued|failed|released|reaped
		[]string{"stage", "channel"},
	)

	ClaimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifygw_claim_conflicts_total",
			Help: "Claims lost to another worker",
		},
	)

	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifygw_send_duration_seconds",
			Help:    "Channel sender latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		JobsTotal,
		ClaimConflicts,
		SendDuration,
	)
}
