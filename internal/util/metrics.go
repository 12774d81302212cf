package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_loads_total",
		Help: "Total number of cart aggregation requests",
	}, []string{"result"})

	CartLoadLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_load_latency_seconds",
		Help:    "Latency of cart aggregation queries",
		Buckets: prometheus.DefBuckets,
	})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"operation", "result"})

	AdminSaveAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_save_attempts_total",
		Help: "Admin product write attempts by path and result",
	}, []string{"via", "result"})

	AdminSaveIdempotentHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admin_save_idempotent_hits_total",
		Help: "Privileged saves answered from a recorded idempotency key",
	})

	CaptchaVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captcha_verifications_total",
		Help: "CAPTCHA verifications by outcome",
	}, []string{"result"})

	TwoFactorCodesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "two_factor_codes_issued_total",
		Help: "Total number of 2FA codes issued",
	})

	TwoFactorVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "two_factor_verifications_total",
		Help: "2FA verifications by outcome",
	}, []string{"result"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Order update notifications by provider and result",
	}, []string{"provider", "result"})

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
