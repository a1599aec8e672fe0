package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Total number of hosted checkout sessions created",
	})

	CheckoutRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_rejected_total",
		Help: "Total number of checkout requests rejected",
	}, []string{"reason"})

	PaymentProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of payment provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of payment webhook deliveries by outcome",
	}, []string{"outcome"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of order rows created",
	})

	SalesCountFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_count_fallback_total",
		Help: "Total number of sales counter updates that used the fallback path",
	}, []string{"result"})

	BestEffortTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "best_effort_tasks_total",
		Help: "Total number of best-effort tasks by name and result",
	}, []string{"task", "result"})

	AdminLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_logins_total",
		Help: "Total number of admin login attempts",
	}, []string{"result"})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"action"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
