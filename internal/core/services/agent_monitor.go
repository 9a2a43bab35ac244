package services

import (
	"context"
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/logger"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/ports"
)

// AgentMonitor periodically evaluates fleet health from heartbeat cadence
// and publishes alerts when an active agent falls out of its window.
type AgentMonitor struct {
	repo     ports.AgentRepository
	bus      ports.EventBus
	interval time.Duration
	now      func() time.Time

	// unhealthy remembers the last verdict per agent so alerts fire on
	// change, not on every sweep.
	unhealthy map[string]bool
}

func NewAgentMonitor(repo ports.AgentRepository, bus ports.EventBus, interval time.Duration) *AgentMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &AgentMonitor{
		repo:      repo,
		bus:       bus,
		interval:  interval,
		now:       time.Now,
		unhealthy: make(map[string]bool),
	}
}

// Start runs the sweep loop until ctx is done.
func (m *AgentMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *AgentMonitor) sweep(ctx context.Context) {
	agents, err := m.repo.List(ctx)
	if err != nil {
		logger.WarnContext(ctx, "fleet sweep failed", "error", err)
		return
	}

	now := m.now()
	stateCounts := make(map[domain.AgentState]int)
	unhealthyCount := 0

	for _, agent := range agents {
		stateCounts[agent.State]++

		// Only running agents have a heartbeat contract to enforce.
		if agent.State != domain.AgentStateActive {
			delete(m.unhealthy, agent.ID)
			continue
		}

		mode := domain.ModeIdle
		if hb, err := m.repo.LatestHeartbeat(ctx, agent.ID); err == nil && hb != nil {
			mode = hb.Mode
		}

		healthy := IsHealthy(mode, agent.LastHeartbeatAt, now)
		if !healthy {
			unhealthyCount++
		}

		if m.unhealthy[agent.ID] == healthy {
			// Verdict flipped since the last sweep.
			m.publish(ctx, agent, mode, healthy, now)
		}
		m.unhealthy[agent.ID] = !healthy
	}

	for _, state := range []domain.AgentState{
		domain.AgentStateNew, domain.AgentStateProvisioned, domain.AgentStateActive,
		domain.AgentStateDraining, domain.AgentStateTerminated, domain.AgentStateKilled,
	} {
		agentsByState.WithLabelValues(string(state)).Set(float64(stateCounts[state]))
	}
	unhealthyAgents.Set(float64(unhealthyCount))
}

func (m *AgentMonitor) publish(ctx context.Context, agent *domain.Agent, mode domain.HeartbeatMode, healthy bool, now time.Time) {
	if m.bus == nil {
		return
	}
	alert := &domain.HealthAlert{
		AgentID:         agent.ID,
		AgentName:       agent.Name,
		Mode:            mode,
		Healthy:         healthy,
		LastHeartbeatAt: agent.LastHeartbeatAt,
		ObservedAt:      now,
	}
	if err := m.bus.PublishAlert(ctx, alert); err != nil {
		logger.WarnContext(ctx, "health alert publish failed", "agent_id", agent.ID, "error", err)
	}
	if !healthy {
		logger.WarnContext(ctx, "agent unhealthy",
			"agent_id", agent.ID, "mode", string(mode), "last_heartbeat_at", agent.LastHeartbeatAt)
	}
}
