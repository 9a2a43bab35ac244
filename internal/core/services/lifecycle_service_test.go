package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

// mockAgentRepo is an in-memory AgentRepository.
type mockAgentRepo struct {
	agents        map[string]*domain.Agent
	events        []*domain.LifecycleEvent
	heartbeats    []*domain.Heartbeat
	deleted       []string
	transitionErr error
}

func newMockAgentRepo(agents ...*domain.Agent) *mockAgentRepo {
	m := &mockAgentRepo{agents: make(map[string]*domain.Agent)}
	for _, a := range agents {
		m.agents[a.ID] = a
	}
	return m
}

func (m *mockAgentRepo) Create(ctx context.Context, agent *domain.Agent) error {
	m.agents[agent.ID] = agent
	return nil
}

func (m *mockAgentRepo) Get(ctx context.Context, id string) (*domain.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return a, nil
}

func (m *mockAgentRepo) GetByDNSName(ctx context.Context, dnsName string) (*domain.Agent, error) {
	for _, a := range m.agents {
		if a.DNSName == dnsName {
			return a, nil
		}
	}
	return nil, errors.New("record not found")
}

func (m *mockAgentRepo) List(ctx context.Context) ([]*domain.Agent, error) {
	var out []*domain.Agent
	for _, a := range m.agents {
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAgentRepo) Transition(ctx context.Context, agent *domain.Agent, event *domain.LifecycleEvent) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	m.agents[agent.ID] = agent
	m.events = append(m.events, event)
	return nil
}

func (m *mockAgentRepo) RecordHeartbeat(ctx context.Context, agent *domain.Agent, hb *domain.Heartbeat, event *domain.LifecycleEvent) error {
	m.agents[agent.ID] = agent
	m.heartbeats = append(m.heartbeats, hb)
	if event != nil {
		m.events = append(m.events, event)
	}
	return nil
}

func (m *mockAgentRepo) Delete(ctx context.Context, id string) error {
	delete(m.agents, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAgentRepo) ListEvents(ctx context.Context, agentID string, limit int) ([]*domain.LifecycleEvent, error) {
	var out []*domain.LifecycleEvent
	for _, e := range m.events {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockAgentRepo) LatestHeartbeat(ctx context.Context, agentID string) (*domain.Heartbeat, error) {
	for i := len(m.heartbeats) - 1; i >= 0; i-- {
		if m.heartbeats[i].AgentID == agentID {
			return m.heartbeats[i], nil
		}
	}
	return nil, nil
}

type mockDeploy struct {
	err   error
	calls int
}

func (m *mockDeploy) DeleteDeployment(ctx context.Context, name, namespace string) error {
	m.calls++
	return m.err
}

type mockNotifier struct {
	err   error
	calls int
}

func (m *mockNotifier) Notify(ctx context.Context, ownerID, title, message, severity string, sendEmail bool) error {
	m.calls++
	return m.err
}

type mockBus struct {
	events []*domain.LifecycleEvent
	alerts []*domain.HealthAlert
}

func (m *mockBus) PublishEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockBus) PublishAlert(ctx context.Context, alert *domain.HealthAlert) error {
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *mockBus) SubscribeEvents(ctx context.Context) (<-chan domain.LifecycleEvent, error) {
	ch := make(chan domain.LifecycleEvent)
	close(ch)
	return ch, nil
}

func (m *mockBus) SubscribeAlerts(ctx context.Context) (<-chan domain.HealthAlert, error) {
	ch := make(chan domain.HealthAlert)
	close(ch)
	return ch, nil
}

var admin = Principal{ID: "admin-1", IsAdmin: true}

func newTestLifecycle(repo *mockAgentRepo, deploy *mockDeploy, notifier *mockNotifier) (*LifecycleService, *mockBus) {
	bus := &mockBus{}
	s := NewLifecycleService(repo, deploy, notifier, bus)
	return s, bus
}

func agentInState(id string, state domain.AgentState) *domain.Agent {
	return &domain.Agent{
		ID:      id,
		Name:    "Agent " + id,
		DNSName: "agent-" + id,
		OwnerID: "owner-1",
		State:   state,
	}
}

func TestRegisterAgent(t *testing.T) {
	repo := newMockAgentRepo()
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	agent, err := s.RegisterAgent(context.Background(), "My Cool Agent", "owner-1")
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if agent.State != domain.AgentStateNew {
		t.Errorf("State = %s, want NEW", agent.State)
	}
	if agent.DNSName != "my-cool-agent" {
		t.Errorf("DNSName = %q, want my-cool-agent", agent.DNSName)
	}
	if agent.ProvisionedAt != nil || agent.ActivatedAt != nil || agent.TerminatedAt != nil {
		t.Error("new agent should have no lifecycle timestamps")
	}

	// Duplicate DNS name is a conflict, not a generic failure
	if _, err := s.RegisterAgent(context.Background(), "my cool agent", "owner-2"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate DNS name should be ErrConflict, got %v", err)
	}

	// Name with no DNS-safe characters is rejected
	if _, err := s.RegisterAgent(context.Background(), "???", "owner-1"); err == nil {
		t.Error("name without DNS-safe characters should be rejected")
	}
}

func TestMarkProvisioned(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateNew))
	s, bus := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	result, err := s.MarkProvisioned(context.Background(), "a1", "agent-a1", "fleet")
	if err != nil {
		t.Fatalf("MarkProvisioned: %v", err)
	}
	if !result.OK {
		t.Fatalf("result not OK: %s", result.Reason)
	}
	if result.Agent.State != domain.AgentStateProvisioned {
		t.Errorf("State = %s, want PROVISIONED", result.Agent.State)
	}
	if result.Agent.ProvisionedAt == nil {
		t.Error("provisioned_at should be set")
	}
	if result.Agent.DeploymentName != "agent-a1" || result.Agent.Namespace != "fleet" {
		t.Error("deployment reference not recorded")
	}
	if len(bus.events) != 1 {
		t.Errorf("published %d events, want 1", len(bus.events))
	}

	// PROVISIONED -> PROVISIONED is illegal
	result, err = s.MarkProvisioned(context.Background(), "a1", "agent-a1", "fleet")
	if !domain.IsIllegalTransition(err) {
		t.Errorf("re-provisioning should be an illegal transition, got %v", err)
	}
	if result.OK {
		t.Error("rejected action must not report OK")
	}
}

func TestRecordHeartbeatActivates(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateProvisioned))
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	agent, err := s.RecordHeartbeat(context.Background(), "a1", domain.ModeIdle, 12)
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if agent.State != domain.AgentStateActive {
		t.Errorf("State = %s, want ACTIVE", agent.State)
	}
	if agent.ActivatedAt == nil {
		t.Fatal("activated_at should be set on first activation")
	}
	if agent.LastHeartbeatAt == nil {
		t.Fatal("last_heartbeat_at should be set")
	}

	firstActivation := *agent.ActivatedAt

	// Second heartbeat keeps the agent ACTIVE and never resets activated_at.
	agent, err = s.RecordHeartbeat(context.Background(), "a1", domain.ModeIdle, 42)
	if err != nil {
		t.Fatalf("second RecordHeartbeat: %v", err)
	}
	if !agent.ActivatedAt.Equal(firstActivation) {
		t.Error("activated_at must be set exactly once")
	}
	if len(repo.heartbeats) != 2 {
		t.Errorf("stored %d heartbeats, want 2", len(repo.heartbeats))
	}
}

func TestRecordHeartbeatMonotonic(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateActive))
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	// Clock skew: the service clock is behind the stored timestamp.
	future := time.Now().Add(time.Hour)
	repo.agents["a1"].LastHeartbeatAt = &future

	agent, err := s.RecordHeartbeat(context.Background(), "a1", domain.ModeIdle, 1)
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if !agent.LastHeartbeatAt.Equal(future) {
		t.Error("last_heartbeat_at must never move backwards")
	}
}

func TestRecordHeartbeatSuspendedStaysDraining(t *testing.T) {
	suspended := agentInState("a1", domain.AgentStateDraining)
	suspended.Metadata = domain.NewAgentMetadata(domain.AgentMetadata{IntentionallySuspended: true, SuspendedBy: "admin-1"})
	draining := agentInState("a2", domain.AgentStateDraining)

	repo := newMockAgentRepo(suspended, draining)
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	agent, err := s.RecordHeartbeat(context.Background(), "a1", domain.ModeIdle, 1)
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if agent.State != domain.AgentStateDraining {
		t.Errorf("intentionally suspended agent reactivated to %s", agent.State)
	}

	// A draining agent that was not suspended by an operator recovers.
	agent, err = s.RecordHeartbeat(context.Background(), "a2", domain.ModeIdle, 1)
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if agent.State != domain.AgentStateActive {
		t.Errorf("draining agent should reactivate, got %s", agent.State)
	}
}

func TestRecordHeartbeatTerminalRejected(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateKilled))
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	if _, err := s.RecordHeartbeat(context.Background(), "a1", domain.ModeIdle, 1); !domain.IsIllegalTransition(err) {
		t.Errorf("heartbeat on KILLED agent should be rejected, got %v", err)
	}
	if len(repo.heartbeats) != 0 {
		t.Error("no heartbeat row should be stored for a terminal agent")
	}
}

func TestSuspendAndResume(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateActive))
	notifier := &mockNotifier{}
	s, _ := newTestLifecycle(repo, &mockDeploy{}, notifier)

	result, err := s.Suspend(context.Background(), admin, "a1", ActionOptions{SendNotification: true})
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if result.Agent.State != domain.AgentStateDraining {
		t.Errorf("State = %s, want DRAINING", result.Agent.State)
	}
	meta := result.Agent.Metadata.Data()
	if !meta.IntentionallySuspended || meta.SuspendedBy != admin.ID {
		t.Error("suspension flag not recorded in metadata")
	}
	if notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.calls)
	}

	// Suspending again is illegal.
	if _, err := s.Suspend(context.Background(), admin, "a1", ActionOptions{}); !domain.IsIllegalTransition(err) {
		t.Errorf("suspend on DRAINING should be rejected, got %v", err)
	}

	result, err = s.Resume(context.Background(), admin, "a1", ActionOptions{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if result.Agent.State != domain.AgentStateActive {
		t.Errorf("State = %s, want ACTIVE", result.Agent.State)
	}
	meta = result.Agent.Metadata.Data()
	if meta.IntentionallySuspended || meta.SuspendedBy != "" {
		t.Error("resume should clear the suspension flag")
	}
}

func TestResumeRequiresDraining(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateProvisioned))
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	if _, err := s.Resume(context.Background(), admin, "a1", ActionOptions{}); !domain.IsIllegalTransition(err) {
		t.Errorf("resume on PROVISIONED should be rejected, got %v", err)
	}
}

func TestTerminateDeletesDeployment(t *testing.T) {
	agent := agentInState("a1", domain.AgentStateActive)
	agent.DeploymentName = "agent-a1"
	agent.Namespace = "fleet"

	repo := newMockAgentRepo(agent)
	deploy := &mockDeploy{}
	s, _ := newTestLifecycle(repo, deploy, &mockNotifier{})

	result, err := s.Terminate(context.Background(), admin, "a1", ActionOptions{})
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if result.Agent.State != domain.AgentStateTerminated {
		t.Errorf("State = %s, want TERMINATED", result.Agent.State)
	}
	if result.Agent.TerminatedAt == nil {
		t.Error("terminated_at should be set")
	}
	if deploy.calls != 1 {
		t.Errorf("deployment deleted %d times, want 1", deploy.calls)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestTerminateSurvivesDeploymentFailure(t *testing.T) {
	agent := agentInState("a1", domain.AgentStateActive)
	agent.DeploymentName = "agent-a1"
	agent.Namespace = "fleet"

	repo := newMockAgentRepo(agent)
	deploy := &mockDeploy{err: errors.New("cluster unreachable")}
	s, _ := newTestLifecycle(repo, deploy, &mockNotifier{})

	result, err := s.Terminate(context.Background(), admin, "a1", ActionOptions{})
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if !result.OK {
		t.Fatal("transition must proceed despite deployment failure")
	}
	if result.Agent.State != domain.AgentStateTerminated {
		t.Errorf("State = %s, want TERMINATED", result.Agent.State)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("want 1 warning about the failed deletion, got %v", result.Warnings)
	}
}

func TestKillOnTerminalRejected(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateKilled))
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	result, err := s.Kill(context.Background(), admin, "a1", ActionOptions{})
	if !domain.IsIllegalTransition(err) {
		t.Fatalf("kill on KILLED should be rejected, got %v", err)
	}
	if result.Reason != "Agent is already KILLED" {
		t.Errorf("Reason = %q, want already-killed message", result.Reason)
	}
}

func TestKillSkipsNoDeployment(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateNew))
	deploy := &mockDeploy{}
	s, _ := newTestLifecycle(repo, deploy, &mockNotifier{})

	result, err := s.Kill(context.Background(), admin, "a1", ActionOptions{})
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if result.Agent.State != domain.AgentStateKilled {
		t.Errorf("State = %s, want KILLED", result.Agent.State)
	}
	if deploy.calls != 0 {
		t.Error("no deployment deletion expected for a never-deployed agent")
	}
}

func TestDeleteAgentGuards(t *testing.T) {
	repo := newMockAgentRepo(
		agentInState("live", domain.AgentStateActive),
		agentInState("dead", domain.AgentStateTerminated),
	)
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	if _, err := s.DeleteAgent(context.Background(), admin, "live", ActionOptions{}); !domain.IsIllegalTransition(err) {
		t.Errorf("delete on ACTIVE should be rejected, got %v", err)
	}

	result, err := s.DeleteAgent(context.Background(), admin, "dead", ActionOptions{})
	if err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if !result.OK {
		t.Fatal("delete on TERMINATED should succeed")
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "dead" {
		t.Errorf("deleted = %v, want [dead]", repo.deleted)
	}
}

func TestNonAdminRejected(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateActive))
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	user := Principal{ID: "user-1", IsAdmin: false}
	if _, err := s.Suspend(context.Background(), user, "a1", ActionOptions{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin suspend should be unauthorized, got %v", err)
	}
	if _, err := s.Terminate(context.Background(), user, "a1", ActionOptions{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin terminate should be unauthorized, got %v", err)
	}
}

func TestActionsOnMissingAgent(t *testing.T) {
	repo := newMockAgentRepo()
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	if _, err := s.Terminate(context.Background(), admin, "ghost", ActionOptions{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if _, err := s.GetAgent(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestNotificationFailureIsWarning(t *testing.T) {
	repo := newMockAgentRepo(agentInState("a1", domain.AgentStateActive))
	notifier := &mockNotifier{err: errors.New("broker down")}
	s, _ := newTestLifecycle(repo, &mockDeploy{}, notifier)

	result, err := s.Suspend(context.Background(), admin, "a1", ActionOptions{SendNotification: true})
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if !result.OK {
		t.Fatal("notification failure must not block the action")
	}
	if len(result.Warnings) != 1 {
		t.Errorf("want 1 warning, got %v", result.Warnings)
	}
}

func TestHealthUsesLatestHeartbeatMode(t *testing.T) {
	agent := agentInState("a1", domain.AgentStateActive)
	now := time.Now()
	beat := now.Add(-10 * time.Minute)
	agent.LastHeartbeatAt = &beat

	repo := newMockAgentRepo(agent)
	repo.heartbeats = append(repo.heartbeats, &domain.Heartbeat{AgentID: "a1", Mode: domain.ModeSleep})
	s, _ := newTestLifecycle(repo, &mockDeploy{}, &mockNotifier{})

	h, err := s.Health(context.Background(), "a1", nil)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	// 10 minutes ago is stale for IDLE but fine for SLEEP.
	if !h.Healthy {
		t.Error("sleep-mode agent within its window should be healthy")
	}
	if h.Mode != domain.ModeSleep {
		t.Errorf("Mode = %s, want SLEEP from latest heartbeat", h.Mode)
	}
}
