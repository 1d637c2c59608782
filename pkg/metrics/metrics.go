package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookRequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_cpu_mutator_webhook_requests_total",
			Help: "Total number of admission review requests handled.",
		},
		[]string{"webhook", "operation"},
	)
	WebhookRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pod_cpu_mutator_webhook_request_duration_seconds",
			Help: "Duration of admission review handling.",
		},
		[]string{"webhook", "operation"},
	)
	AdmissionDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_cpu_mutator_admission_decision_total",
			Help: "Total number of admission decisions (allowed/denied).",
		},
		[]string{"webhook", "operation", "decision"},
	)
	CPUAssigned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pod_cpu_mutator_assigned_cpu_millicores",
			Help:    "CPU request values assigned to admitted pods.",
			Buckets: prometheus.LinearBuckets(100, 50, 9),
		},
		[]string{"ownership"},
	)
	CollaboratorFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_cpu_mutator_collaborator_failure_total",
			Help: "Cluster query failures during deletion validation (each fails open).",
		},
		[]string{"query"},
	)

	// Custom registry for webhook metrics only
	WebhookRegistry = prometheus.NewRegistry()
	registerOnce    sync.Once
)

func RegisterWebhookMetrics() {
	registerOnce.Do(func() {
		WebhookRegistry.MustRegister(WebhookRequestCount)
		WebhookRegistry.MustRegister(WebhookRequestDuration)
		WebhookRegistry.MustRegister(AdmissionDecision)
		WebhookRegistry.MustRegister(CPUAssigned)
		WebhookRegistry.MustRegister(CollaboratorFailure)
	})
}
