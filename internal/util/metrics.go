package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Total number of cart mutations",
	}, []string{"operation"})

	CartPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_persist_failures_total",
		Help: "Total number of failed cart state writes",
	})

	ChatMessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Total number of user messages sent to the assistant",
	})

	ChatSendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_send_failures_total",
		Help: "Total number of chat sends that ended in an error reply",
	})

	ChatResponseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_response_latency_seconds",
		Help:    "Latency of chat round trips to the backend",
		Buckets: prometheus.DefBuckets,
	})

	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_requests_total",
		Help: "Total number of requests to the remote chat/catalog service",
	}, []string{"endpoint", "status"})

	BackendHealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_health_checks_total",
		Help: "Total number of backend health probes",
	}, []string{"result"})

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
