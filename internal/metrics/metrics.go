package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_inbound_messages_total",
		Help: "Inbound webhook messages by handling outcome",
	}, []string{"outcome"})

	OTPChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_otp_checks_total",
		Help: "OTP verification checks by provider status",
	}, []string{"status"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_request_executions_total",
		Help: "Pending request executions by intent and final status",
	}, []string{"intent", "status"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_request_execution_duration_seconds",
		Help:    "Pending request execution latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"intent"})
)
