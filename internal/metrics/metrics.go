package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	DocumentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_created_total",
		Help: "Documents created by type and origin (direct, conversion)",
	}, []string{"type", "origin"})

	ArtifactRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifact_requests_total",
		Help: "Artifact reads by result: hit, miss, original",
	}, []string{"result"})

	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "artifact_render_duration_seconds",
		Help:    "Time spent rendering document artifacts",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	})

	RenderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifact_render_failures_total",
		Help: "Render failures by reason: error, timeout, unavailable, storage",
	}, []string{"reason"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment webhook events by provider and reconciliation outcome",
	}, []string{"provider", "outcome"})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "document_emails_total",
		Help: "Document emails by result: sent, failed, unavailable",
	}, []string{"result"})

	DocumentsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "documents_by_status",
		Help: "Stored documents by type and status, sampled periodically",
	}, []string{"type", "status"})

	DocumentValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "documents_value_total",
		Help: "Sum of document totals by type and status, sampled periodically",
	}, []string{"type", "status"})

	OverdueSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_overdue_swept_total",
		Help: "Invoices moved to overdue by the background sweep",
	})
)
