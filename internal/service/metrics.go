package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics: счётчики конвейера приёма продаж.
type Metrics struct {
	SalesIngested        *prometheus.CounterVec
	EnrichmentFailures   *prometheus.CounterVec
	CascadeCreated       prometheus.Counter
	BadgesAwarded        *prometheus.CounterVec
	ChallengesCompleted  prometheus.Counter
	NotificationFailures prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg. При reg == nil метрики не регистрируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SalesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commissions",
			Name:      "sales_ingested_total",
			Help:      "Sales persisted, by source.",
		}, []string{"source"}),
		EnrichmentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commissions",
			Name:      "enrichment_failures_total",
			Help:      "Failed post-sale enrichment steps, by step.",
		}, []string{"step"}),
		CascadeCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "commissions",
			Name:      "cascade_commissions_total",
			Help:      "Cascade commissions recorded.",
		}),
		BadgesAwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commissions",
			Name:      "badges_awarded_total",
			Help:      "Badges awarded, by badge.",
		}, []string{"badge"}),
		ChallengesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "commissions",
			Name:      "challenges_completed_total",
			Help:      "Challenge completions recorded.",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "commissions",
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered.",
		}),
	}
}
