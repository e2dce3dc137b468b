package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smspf_messages_total",
			Help: "Dispatched messages by outcome",
		},
		[]string{"outcome"}, // sent|failed
	)

	RefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smspf_refunds_total",
			Help: "Reconciled refunds by decision",
		},
		[]string{"decision"}, // processed|cancelled|error
	)

	PollTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smspf_poll_transitions_total",
			Help: "Status poller transitions by target status",
		},
		[]string{"status"}, // delivered|failed|timeout|error
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smspf_jobs_total",
			Help: "Dispatch jobs by final status",
		},
		[]string{"status"}, // completed|failed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		MessagesTotal,
		RefundsTotal,
		PollTransitionsTotal,
		JobsTotal,
	)
}
