package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auditflow_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auditflow_enqueue_total", Help: "SQS enqueue results"},
		[]string{"task", "result"},
	)
	Jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auditflow_jobs_total", Help: "Job outcomes by task type"},
		[]string{"task", "result"},
	)
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditflow_job_duration_seconds",
			Help:    "Job handler duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600},
		},
		[]string{"task"},
	)
	DeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auditflow_dead_letter_total", Help: "Jobs that exhausted their retry ceiling"},
		[]string{"task"},
	)
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auditflow_provider_calls_total", Help: "External provider call outcomes"},
		[]string{"provider", "result"},
	)
	RenderPasses = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditflow_render_passes",
			Help:    "Renders performed per fit-to-one-page search",
			Buckets: []float64{2, 4, 6, 8, 10, 12, 14, 16},
		},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auditflow_webhook_events_total", Help: "Inbound webhook events"},
		[]string{"source", "event"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Enqueues, Jobs, JobDuration, DeadLetters, ProviderCalls, RenderPasses, WebhookEvents)
}
