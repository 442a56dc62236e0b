package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsFinishedTotal, battlesEndedTotal) }

var (
	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Jobs that reached a terminal status, labeled by type and status.",
		},
		[]string{"type", "status"}, // 'battle'/'scale', 'succeeded'/'failed'
	)

	battlesEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battles_ended_total",
			Help: "Battle conversations by termination reason.",
		},
		[]string{"reason"}, // 'goal', 'limit', 'error', 'manual', 'timeout'
	)
)

func IncJobFinished(jobType, status string) {
	jobsFinishedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func IncBattleEnded(reason string) {
	battlesEndedTotal.WithLabelValues(norm(reason)).Inc()
}
