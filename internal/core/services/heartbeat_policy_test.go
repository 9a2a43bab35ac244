package services

import (
	"testing"
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

func TestExpectedInterval(t *testing.T) {
	cases := []struct {
		mode domain.HeartbeatMode
		want time.Duration
	}{
		{domain.ModeEmergency, 5 * time.Second},
		{domain.ModeIdle, 30 * time.Second},
		{domain.ModeSleep, 15 * time.Minute},
		{domain.HeartbeatMode("UNKNOWN"), 30 * time.Second},
		{domain.HeartbeatMode(""), 30 * time.Second},
	}
	for _, tc := range cases {
		if got := ExpectedInterval(tc.mode); got != tc.want {
			t.Errorf("ExpectedInterval(%q) = %v, want %v", tc.mode, got, tc.want)
		}
	}
}

func TestIsHealthy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	beatAt := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	cases := []struct {
		name string
		mode domain.HeartbeatMode
		last *time.Time
		want bool
	}{
		{"no heartbeat ever", domain.ModeIdle, nil, false},
		{"idle fresh", domain.ModeIdle, beatAt(10 * time.Second), true},
		{"idle one missed beat still inside window", domain.ModeIdle, beatAt(59 * time.Second), true},
		{"idle exactly at boundary", domain.ModeIdle, beatAt(60 * time.Second), false},
		{"idle stale", domain.ModeIdle, beatAt(2 * time.Minute), false},
		{"emergency tight window", domain.ModeEmergency, beatAt(11 * time.Second), false},
		{"emergency fresh", domain.ModeEmergency, beatAt(4 * time.Second), true},
		{"emergency just inside window", domain.ModeEmergency, beatAt(9 * time.Second), true},
		{"emergency exactly at boundary", domain.ModeEmergency, beatAt(10 * time.Second), false},
		{"sleep wide window", domain.ModeSleep, beatAt(20 * time.Minute), true},
		{"sleep stale", domain.ModeSleep, beatAt(31 * time.Minute), false},
		{"unknown mode uses idle window", domain.HeartbeatMode("weird"), beatAt(45 * time.Second), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsHealthy(tc.mode, tc.last, now); got != tc.want {
				t.Errorf("IsHealthy(%q, %v) = %v, want %v", tc.mode, tc.last, got, tc.want)
			}
		})
	}
}

func TestEvaluateHealthCollectorWins(t *testing.T) {
	now := time.Now()
	stale := now.Add(-time.Hour)
	agent := &domain.Agent{ID: "a1", State: domain.AgentStateActive, LastHeartbeatAt: &stale}

	// Computed verdict would be unhealthy, collector says otherwise.
	h := EvaluateHealth(agent, domain.ModeIdle, &CollectorReport{Healthy: true, Mode: domain.ModeSleep}, now)
	if !h.Healthy {
		t.Error("collector verdict should override the computed one")
	}
	if h.Source != "collector" {
		t.Errorf("Source = %q, want collector", h.Source)
	}
	if h.Mode != domain.ModeSleep {
		t.Errorf("Mode = %q, want collector-reported mode", h.Mode)
	}
	if h.ExpectedInterval != 15*time.Minute {
		t.Errorf("ExpectedInterval = %v, want the collector mode's interval", h.ExpectedInterval)
	}
}

func TestEvaluateHealthComputed(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-5 * time.Second)
	agent := &domain.Agent{ID: "a1", State: domain.AgentStateActive, LastHeartbeatAt: &fresh}

	h := EvaluateHealth(agent, domain.ModeIdle, nil, now)
	if !h.Healthy {
		t.Error("fresh beat should be healthy")
	}
	if h.Source != "computed" {
		t.Errorf("Source = %q, want computed", h.Source)
	}

	agent.LastHeartbeatAt = nil
	h = EvaluateHealth(agent, domain.ModeIdle, nil, now)
	if h.Healthy {
		t.Error("agent with no heartbeat should be unhealthy")
	}
}
