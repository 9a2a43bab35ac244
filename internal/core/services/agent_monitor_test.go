package services

import (
	"context"
	"testing"
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

func TestSweepAlertsOnVerdictChangeOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-5 * time.Minute)

	agent := agentInState("a1", domain.AgentStateActive)
	agent.LastHeartbeatAt = &stale

	repo := newMockAgentRepo(agent)
	repo.heartbeats = append(repo.heartbeats, &domain.Heartbeat{AgentID: "a1", Mode: domain.ModeIdle})
	bus := &mockBus{}

	m := NewAgentMonitor(repo, bus, time.Second)
	m.now = func() time.Time { return now }

	// First sweep sees an unhealthy agent and alerts.
	m.sweep(context.Background())
	if len(bus.alerts) != 1 {
		t.Fatalf("alerts after first sweep = %d, want 1", len(bus.alerts))
	}
	if bus.alerts[0].Healthy {
		t.Error("alert should report unhealthy")
	}

	// Nothing changed: no repeat alert.
	m.sweep(context.Background())
	if len(bus.alerts) != 1 {
		t.Fatalf("alerts after second sweep = %d, want 1", len(bus.alerts))
	}

	// The agent beats again: one recovery alert.
	fresh := now.Add(-time.Second)
	agent.LastHeartbeatAt = &fresh
	m.sweep(context.Background())
	if len(bus.alerts) != 2 {
		t.Fatalf("alerts after recovery sweep = %d, want 2", len(bus.alerts))
	}
	if !bus.alerts[1].Healthy {
		t.Error("recovery alert should report healthy")
	}

	// Steady healthy state stays quiet.
	m.sweep(context.Background())
	if len(bus.alerts) != 2 {
		t.Fatalf("alerts after steady sweep = %d, want 2", len(bus.alerts))
	}
}

func TestSweepIgnoresNonActiveAgents(t *testing.T) {
	agent := agentInState("a1", domain.AgentStateDraining)
	// No heartbeat at all, which would be unhealthy if it were ACTIVE.
	repo := newMockAgentRepo(agent)
	bus := &mockBus{}

	m := NewAgentMonitor(repo, bus, time.Second)
	m.sweep(context.Background())

	if len(bus.alerts) != 0 {
		t.Errorf("non-active agent produced %d alerts, want 0", len(bus.alerts))
	}
}
