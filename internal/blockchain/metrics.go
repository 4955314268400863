package blockchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_ledger_registrations_total",
		Help: "On-chain campaign registrations by outcome",
	}, []string{"outcome"})

	sendAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campaign_ledger_send_attempts_total",
		Help: "createCampaign transaction send attempts, including retries",
	})

	registrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campaign_ledger_registration_duration_seconds",
		Help:    "Time from dispatch to confirmation or failure of a registration",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	})
)
