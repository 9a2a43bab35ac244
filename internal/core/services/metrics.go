package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_lifecycle_transitions_total",
			Help: "Lifecycle actions by action and outcome",
		},
		[]string{"action", "result"},
	)

	heartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_heartbeats_total",
			Help: "Accepted heartbeats by reported mode",
		},
		[]string{"mode"},
	)

	agentsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agents_by_state",
			Help: "Current number of agents per lifecycle state",
		},
		[]string{"state"},
	)

	unhealthyAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agents_unhealthy",
			Help: "Agents outside their heartbeat health window",
		},
	)

	versionSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_version_saves_total",
			Help: "Document version saves by outcome",
		},
		[]string{"result"},
	)

	indexingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "document_indexing_failures_total",
			Help: "Best-effort indexing attempts that never completed",
		},
	)
)
