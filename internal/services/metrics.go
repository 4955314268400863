package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	campaignTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_transitions_total",
		Help: "Campaign status changes by target status",
	}, []string{"status"})

	campaignJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_joins_total",
		Help: "Join requests by outcome",
	}, []string{"outcome"})

	registrationDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_registration_dispatch_total",
		Help: "Registration tasks handed to the task queue by outcome",
	}, []string{"outcome"})
)

func joinOutcome(err error) string {
	switch {
	case err == nil:
		return "joined"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
