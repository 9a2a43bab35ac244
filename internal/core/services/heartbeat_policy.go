package services

import (
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

// Expected heartbeat cadence per operating mode.
const (
	intervalEmergency = 5 * time.Second
	intervalIdle      = 30 * time.Second
	intervalSleep     = 15 * time.Minute

	// heartbeatGraceFactor tolerates exactly one missed beat.
	heartbeatGraceFactor = 2
)

// ExpectedInterval maps an operating mode to its heartbeat cadence.
// Unknown modes get IDLE's interval.
func ExpectedInterval(mode domain.HeartbeatMode) time.Duration {
	switch mode {
	case domain.ModeEmergency:
		return intervalEmergency
	case domain.ModeSleep:
		return intervalSleep
	case domain.ModeIdle:
		return intervalIdle
	default:
		return intervalIdle
	}
}

// IsHealthy reports whether an agent that last beat at lastHeartbeatAt, in
// the given mode, is within its health window at now. A nil lastHeartbeatAt
// means no beat was ever received, which is always unhealthy.
func IsHealthy(mode domain.HeartbeatMode, lastHeartbeatAt *time.Time, now time.Time) bool {
	if lastHeartbeatAt == nil {
		return false
	}
	return now.Sub(*lastHeartbeatAt) < heartbeatGraceFactor*ExpectedInterval(mode)
}

// CollectorReport is an authoritative verdict supplied by the external
// heartbeat collector. When present it wins over the local computation.
type CollectorReport struct {
	Healthy bool                 `json:"healthy"`
	Mode    domain.HeartbeatMode `json:"mode"`
}

// AgentHealth is the per-agent health view served to callers.
type AgentHealth struct {
	AgentID          string               `json:"agent_id"`
	State            domain.AgentState    `json:"state"`
	Mode             domain.HeartbeatMode `json:"mode"`
	Healthy          bool                 `json:"healthy"`
	ExpectedInterval time.Duration        `json:"expected_interval"`
	LastHeartbeatAt  *time.Time           `json:"last_heartbeat_at"`
	Source           string               `json:"source"` // "collector" or "computed"
}

// EvaluateHealth classifies an agent, preferring the collector's verdict when
// one is available and falling back to the local interval rule otherwise.
func EvaluateHealth(agent *domain.Agent, mode domain.HeartbeatMode, report *CollectorReport, now time.Time) AgentHealth {
	h := AgentHealth{
		AgentID:         agent.ID,
		State:           agent.State,
		Mode:            mode,
		LastHeartbeatAt: agent.LastHeartbeatAt,
	}

	if report != nil {
		h.Healthy = report.Healthy
		h.Mode = report.Mode
		h.Source = "collector"
		h.ExpectedInterval = ExpectedInterval(report.Mode)
		return h
	}

	h.Healthy = IsHealthy(mode, agent.LastHeartbeatAt, now)
	h.Source = "computed"
	h.ExpectedInterval = ExpectedInterval(mode)
	return h
}
