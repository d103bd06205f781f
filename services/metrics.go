package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatecrawl_runs_finished_total",
		Help: "Finish-run calls by outcome.",
	}, []string{"outcome"})

	settlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatecrawl_settlement_duration_seconds",
		Help:    "Time spent settling a run on-chain.",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
	})

	settlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatecrawl_settlement_failures_total",
		Help: "Runs whose chain settlement failed.",
	})

	partyEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatecrawl_party_events_published_total",
		Help: "Party events published by type.",
	}, []string{"type"})

	partiesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatecrawl_parties_expired_total",
		Help: "Waiting parties closed by TTL expiry.",
	})

	inventorySynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatecrawl_inventory_items_synced_total",
		Help: "Inventory items reconciled against the chain by result.",
	}, []string{"result"})
)
