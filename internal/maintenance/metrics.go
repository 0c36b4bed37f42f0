package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_retention_runs_total",
			Help: "Total number of session retention runs by status.",
		},
		[]string{"status"},
	)
	sessionsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dataagent_sessions_pruned_total",
			Help: "Total number of expired session directories removed.",
		},
	)
	archiveObjectsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dataagent_archive_objects_deleted_total",
			Help: "Total number of archived session objects deleted by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataagent_integrity_runs_total",
			Help: "Total number of archive integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityMissingArchivesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dataagent_integrity_missing_archives_total",
			Help: "Total number of sessions whose recorded archive is missing or incomplete.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		sessionsPrunedTotal,
		archiveObjectsDeletedTotal,
		integrityRunsTotal,
		integrityMissingArchivesTotal,
	)
}
