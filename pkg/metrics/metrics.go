package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	JobsQueued = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moonmind_jobs_queued",
			Help: "Number of queued jobs by type",
		},
		[]string{"type"},
	)

	JobsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moonmind_jobs_running",
			Help: "Number of running jobs by type",
		},
		[]string{"type"},
	)

	JobsTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonmind_jobs_total",
			Help: "Total number of terminal job transitions by type and status",
		},
		[]string{"type", "status"},
	)

	JobClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonmind_job_claims_total",
			Help: "Total number of claim attempts by outcome (claimed, empty, paused)",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moonmind_job_duration_seconds",
			Help:    "Time from claim to terminal state in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"type"},
	)

	LeaseExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonmind_lease_expirations_total",
			Help: "Total number of expired leases normalized by outcome (requeued, dead_letter, cancelled)",
		},
		[]string{"outcome"},
	)

	// Journal and artifact metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonmind_events_total",
			Help: "Total number of job events appended by level",
		},
		[]string{"level"},
	)

	ArtifactBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moonmind_artifact_bytes_total",
			Help: "Total artifact bytes written",
		},
	)

	// Skill metrics
	SkillCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moonmind_skill_cache_hits_total",
			Help: "Total number of skill materializations served from the content cache",
		},
	)

	SkillFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonmind_skill_fetches_total",
			Help: "Total number of skill bundle fetches by scheme and outcome",
		},
		[]string{"scheme", "outcome"},
	)

	// Notification metrics
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonmind_notifications_total",
			Help: "Total number of proposal webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonmind_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moonmind_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(JobsQueued)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobsTerminal)
	prometheus.MustRegister(JobClaims)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(LeaseExpirations)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(ArtifactBytes)
	prometheus.MustRegister(SkillCacheHits)
	prometheus.MustRegister(SkillFetches)
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
