package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/logger"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/ports"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/tracing"
)

// Principal identifies the caller of an administrative action.
type Principal struct {
	ID      string
	IsAdmin bool
}

// ActionOptions carries the optional knobs every lifecycle action accepts.
type ActionOptions struct {
	Reason           string `json:"reason,omitempty"`
	SendNotification bool   `json:"send_notification,omitempty"`
}

// ActionResult separates the primary outcome from best-effort side effects.
// Warnings record collaborator failures that did not block the operation.
type ActionResult struct {
	OK       bool                    `json:"ok"`
	Reason   string                  `json:"reason,omitempty"`
	Agent    *domain.Agent           `json:"agent,omitempty"`
	Event    *domain.LifecycleEvent  `json:"event,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
}

type LifecycleService struct {
	repo     ports.AgentRepository
	deploy   ports.DeploymentClient
	notifier ports.Notifier
	bus      ports.EventBus
	now      func() time.Time
}

func NewLifecycleService(repo ports.AgentRepository, deploy ports.DeploymentClient, notifier ports.Notifier, bus ports.EventBus) *LifecycleService {
	return &LifecycleService{
		repo:     repo,
		deploy:   deploy,
		notifier: notifier,
		bus:      bus,
		now:      time.Now,
	}
}

// RegisterAgent creates a new agent in NEW state. DNS names must be unique
// and DNS-safe; the caller-supplied name is lowercased and sanitized.
func (s *LifecycleService) RegisterAgent(ctx context.Context, name, ownerID string) (*domain.Agent, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.RegisterAgent")
	defer span.End()

	dnsName := sanitizeDNSName(name)
	if dnsName == "" {
		return nil, fmt.Errorf("agent name %q has no DNS-safe characters", name)
	}

	if existing, err := s.repo.GetByDNSName(ctx, dnsName); err == nil && existing != nil {
		return nil, fmt.Errorf("agent name %q is taken: %w", dnsName, domain.ErrConflict)
	}

	agent := &domain.Agent{
		ID:        uuid.New().String(),
		Name:      name,
		DNSName:   dnsName,
		OwnerID:   ownerID,
		State:     domain.AgentStateNew,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}

	// Registration is announced on the bus but not written to the audit
	// trail; the trail starts with the first state transition.
	to := agent.State
	s.publishEvent(ctx, &domain.LifecycleEvent{
		AgentID:   agent.ID,
		EventType: domain.EventRegistered,
		ToState:   &to,
		CreatedAt: agent.CreatedAt,
	})

	logger.InfoContext(ctx, "agent registered", "agent_id", agent.ID, "dns_name", dnsName)
	return agent, nil
}

// MarkProvisioned moves NEW -> PROVISIONED once deployment infrastructure
// exists, recording the deployment reference and provisioned_at.
func (s *LifecycleService) MarkProvisioned(ctx context.Context, agentID, deploymentName, namespace string) (*ActionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.MarkProvisioned")
	defer span.End()

	agent, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return failure(fmt.Sprintf("Agent %s not found", agentID)), fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}

	if !domain.CanTransition(agent.State, domain.AgentStateProvisioned) {
		ite := &domain.IllegalTransitionError{Action: "provision", Current: agent.State}
		return failure(ite.Error()), ite
	}

	from := agent.State
	now := s.now()
	agent.State = domain.AgentStateProvisioned
	agent.DeploymentName = deploymentName
	agent.Namespace = namespace
	if agent.ProvisionedAt == nil {
		agent.ProvisionedAt = &now
	}
	agent.UpdatedAt = now

	event := s.buildEvent(agent.ID, domain.EventProvisioned, from, agent.State, domain.EventMetadata{
		Reason: fmt.Sprintf("Deployment %s/%s created", namespace, deploymentName),
	}, now)

	if err := s.repo.Transition(ctx, agent, event); err != nil {
		return failure("Unexpected error"), fmt.Errorf("provision transition: %w", err)
	}

	s.publishEvent(ctx, event)
	transitionsTotal.WithLabelValues("provision", "ok").Inc()
	return &ActionResult{OK: true, Agent: agent, Event: event}, nil
}

// RecordHeartbeat ingests one heartbeat: appends the row, bumps
// last_heartbeat_at (monotonically), and activates the agent when it is
// PROVISIONED or DRAINING. An intentionally suspended agent stays DRAINING.
// activated_at is set only on the first activation.
func (s *LifecycleService) RecordHeartbeat(ctx context.Context, agentID string, mode domain.HeartbeatMode, uptimeSeconds int64) (*domain.Agent, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.RecordHeartbeat")
	defer span.End()

	agent, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	if agent.State.Terminal() {
		return nil, &domain.IllegalTransitionError{
			Action:  "heartbeat",
			Current: agent.State,
			Detail:  fmt.Sprintf("Agent is already %s", agent.State),
		}
	}

	now := s.now()
	hb := &domain.Heartbeat{
		AgentID:       agent.ID,
		Mode:          mode,
		UptimeSeconds: uptimeSeconds,
		CreatedAt:     now,
	}

	if agent.LastHeartbeatAt == nil || now.After(*agent.LastHeartbeatAt) {
		agent.LastHeartbeatAt = &now
	}
	agent.UpdatedAt = now

	var event *domain.LifecycleEvent
	from := agent.State
	if s.shouldActivate(agent) {
		agent.State = domain.AgentStateActive
		if agent.ActivatedAt == nil {
			agent.ActivatedAt = &now
		}
		event = s.buildEvent(agent.ID, domain.EventActivated, from, agent.State, domain.EventMetadata{
			Reason: "Heartbeat received",
		}, now)
	}

	if err := s.repo.RecordHeartbeat(ctx, agent, hb, event); err != nil {
		return nil, fmt.Errorf("record heartbeat: %w", err)
	}

	heartbeatsTotal.WithLabelValues(string(mode)).Inc()
	if event != nil {
		s.publishEvent(ctx, event)
		transitionsTotal.WithLabelValues("activate", "ok").Inc()
	}
	return agent, nil
}

func (s *LifecycleService) shouldActivate(agent *domain.Agent) bool {
	switch agent.State {
	case domain.AgentStateProvisioned:
		return true
	case domain.AgentStateDraining:
		return !agent.Metadata.Data().IntentionallySuspended
	default:
		return false
	}
}

// Suspend moves ACTIVE -> DRAINING and flags the agent as intentionally
// suspended so heartbeats do not reactivate it.
func (s *LifecycleService) Suspend(ctx context.Context, caller Principal, agentID string, opts ActionOptions) (*ActionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Suspend")
	defer span.End()

	agent, res, err := s.authorize(ctx, caller, agentID)
	if err != nil {
		return res, err
	}

	if agent.State != domain.AgentStateActive {
		ite := &domain.IllegalTransitionError{
			Action:  "suspend",
			Current: agent.State,
			Detail:  fmt.Sprintf("Cannot suspend agent in %s state. Agent must be ACTIVE.", agent.State),
		}
		transitionsTotal.WithLabelValues("suspend", "rejected").Inc()
		return failure(ite.Error()), ite
	}

	from := agent.State
	now := s.now()
	agent.State = domain.AgentStateDraining
	meta := agent.Metadata.Data()
	meta.IntentionallySuspended = true
	meta.SuspendedBy = caller.ID
	agent.Metadata = domain.NewAgentMetadata(meta)
	agent.UpdatedAt = now

	event := s.buildEvent(agent.ID, domain.EventSuspended, from, agent.State, eventMeta(caller, opts, "Admin initiated suspension"), now)

	if err := s.repo.Transition(ctx, agent, event); err != nil {
		transitionsTotal.WithLabelValues("suspend", "error").Inc()
		return failure("Unexpected error"), fmt.Errorf("suspend transition: %w", err)
	}

	result := &ActionResult{OK: true, Agent: agent, Event: event}
	s.publishEvent(ctx, event)
	s.notify(ctx, result, agent, opts, "Agent suspended",
		fmt.Sprintf("Your agent %q was suspended.", agent.Name), "warning")
	transitionsTotal.WithLabelValues("suspend", "ok").Inc()
	logger.InfoContext(ctx, "agent suspended", "agent_id", agent.ID, "by", caller.ID)
	return result, nil
}

// Resume moves DRAINING -> ACTIVE and clears the suspension flag.
func (s *LifecycleService) Resume(ctx context.Context, caller Principal, agentID string, opts ActionOptions) (*ActionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Resume")
	defer span.End()

	agent, res, err := s.authorize(ctx, caller, agentID)
	if err != nil {
		return res, err
	}

	if agent.State != domain.AgentStateDraining {
		ite := &domain.IllegalTransitionError{
			Action:  "resume",
			Current: agent.State,
			Detail:  fmt.Sprintf("Cannot resume agent in %s state. Agent must be DRAINING.", agent.State),
		}
		transitionsTotal.WithLabelValues("resume", "rejected").Inc()
		return failure(ite.Error()), ite
	}

	from := agent.State
	now := s.now()
	agent.State = domain.AgentStateActive
	if agent.ActivatedAt == nil {
		agent.ActivatedAt = &now
	}
	meta := agent.Metadata.Data()
	meta.IntentionallySuspended = false
	meta.SuspendedBy = ""
	agent.Metadata = domain.NewAgentMetadata(meta)
	agent.UpdatedAt = now

	event := s.buildEvent(agent.ID, domain.EventResumed, from, agent.State, eventMeta(caller, opts, "Admin initiated resume"), now)

	if err := s.repo.Transition(ctx, agent, event); err != nil {
		transitionsTotal.WithLabelValues("resume", "error").Inc()
		return failure("Unexpected error"), fmt.Errorf("resume transition: %w", err)
	}

	result := &ActionResult{OK: true, Agent: agent, Event: event}
	s.publishEvent(ctx, event)
	s.notify(ctx, result, agent, opts, "Agent resumed",
		fmt.Sprintf("Your agent %q is active again.", agent.Name), "info")
	transitionsTotal.WithLabelValues("resume", "ok").Inc()
	logger.InfoContext(ctx, "agent resumed", "agent_id", agent.ID, "by", caller.ID)
	return result, nil
}

// Terminate gracefully ends an agent from any non-terminal state. The
// deployment deletion is best-effort cleanup, never a precondition: the
// database transition commits regardless so an unreachable cluster cannot
// strand the agent in a transitional state.
func (s *LifecycleService) Terminate(ctx context.Context, caller Principal, agentID string, opts ActionOptions) (*ActionResult, error) {
	return s.endAgent(ctx, caller, agentID, opts, false)
}

// Kill forcefully ends an agent. Same preconditions as Terminate, force
// semantics: calling Kill on an already TERMINATED or KILLED agent is
// rejected the same way.
func (s *LifecycleService) Kill(ctx context.Context, caller Principal, agentID string, opts ActionOptions) (*ActionResult, error) {
	return s.endAgent(ctx, caller, agentID, opts, true)
}

func (s *LifecycleService) endAgent(ctx context.Context, caller Principal, agentID string, opts ActionOptions, force bool) (*ActionResult, error) {
	action, eventType, toState := "terminate", domain.EventTerminated, domain.AgentStateTerminated
	if force {
		action, eventType, toState = "kill", domain.EventKilled, domain.AgentStateKilled
	}

	ctx, span := tracing.StartSpan(ctx, "lifecycle."+action)
	defer span.End()

	agent, res, err := s.authorize(ctx, caller, agentID)
	if err != nil {
		return res, err
	}

	if agent.State.Terminal() {
		ite := &domain.IllegalTransitionError{
			Action:  action,
			Current: agent.State,
			Detail:  fmt.Sprintf("Agent is already %s", agent.State),
		}
		transitionsTotal.WithLabelValues(action, "rejected").Inc()
		return failure(ite.Error()), ite
	}

	result := &ActionResult{}

	// Best-effort external cleanup before the state write; failure is
	// recorded as a warning and the transition proceeds.
	if agent.HasDeployment() && s.deploy != nil {
		if err := s.deploy.DeleteDeployment(ctx, agent.DeploymentName, agent.Namespace); err != nil {
			warn := fmt.Sprintf("deployment deletion failed: %v", err)
			result.Warnings = append(result.Warnings, warn)
			logger.WarnContext(ctx, "deployment deletion failed",
				"agent_id", agent.ID, "deployment", agent.DeploymentName, "namespace", agent.Namespace, "error", err)
		}
	}

	from := agent.State
	now := s.now()
	agent.State = toState
	if agent.TerminatedAt == nil {
		agent.TerminatedAt = &now
	}
	agent.UpdatedAt = now

	defaultReason := "Admin initiated termination"
	if force {
		defaultReason = "Admin initiated force kill"
	}
	event := s.buildEvent(agent.ID, eventType, from, agent.State, eventMeta(caller, opts, defaultReason), now)

	if err := s.repo.Transition(ctx, agent, event); err != nil {
		transitionsTotal.WithLabelValues(action, "error").Inc()
		return failure("Unexpected error"), fmt.Errorf("%s transition: %w", action, err)
	}

	result.OK = true
	result.Agent = agent
	result.Event = event
	s.publishEvent(ctx, event)
	s.notify(ctx, result, agent, opts, "Agent "+strings.ToLower(string(toState)),
		fmt.Sprintf("Your agent %q was %s.", agent.Name, strings.ToLower(string(toState))), "error")
	transitionsTotal.WithLabelValues(action, "ok").Inc()
	logger.InfoContext(ctx, "agent ended", "agent_id", agent.ID, "action", action, "by", caller.ID)
	return result, nil
}

// DeleteAgent permanently removes a TERMINATED or KILLED agent along with
// its lifecycle events and heartbeats. The owner is notified before the
// delete because afterwards the owner reference is gone.
func (s *LifecycleService) DeleteAgent(ctx context.Context, caller Principal, agentID string, opts ActionOptions) (*ActionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.DeleteAgent")
	defer span.End()

	agent, res, err := s.authorize(ctx, caller, agentID)
	if err != nil {
		return res, err
	}

	if !agent.State.Terminal() {
		ite := &domain.IllegalTransitionError{
			Action:  "delete",
			Current: agent.State,
			Detail:  "Terminate or kill the agent first.",
		}
		transitionsTotal.WithLabelValues("delete", "rejected").Inc()
		return failure(ite.Error()), ite
	}

	result := &ActionResult{}
	s.notify(ctx, result, agent, opts, "Agent deleted",
		fmt.Sprintf("Your agent %q and its history were permanently removed.", agent.Name), "info")

	if err := s.repo.Delete(ctx, agent.ID); err != nil {
		transitionsTotal.WithLabelValues("delete", "error").Inc()
		return failure("Unexpected error"), fmt.Errorf("delete agent: %w", err)
	}

	result.OK = true
	transitionsTotal.WithLabelValues("delete", "ok").Inc()
	logger.InfoContext(ctx, "agent deleted", "agent_id", agent.ID, "by", caller.ID)
	return result, nil
}

// GetAgent returns one agent.
func (s *LifecycleService) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	return agent, nil
}

// ListAgents returns the fleet. Never returns a nil slice.
func (s *LifecycleService) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	agents, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	return agents, nil
}

// ListEvents returns the newest lifecycle events for an agent.
func (s *LifecycleService) ListEvents(ctx context.Context, agentID string, limit int) ([]*domain.LifecycleEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if _, err := s.repo.Get(ctx, agentID); err != nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	events, err := s.repo.ListEvents(ctx, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []*domain.LifecycleEvent{}
	}
	return events, nil
}

// Health evaluates the agent's current health from its latest heartbeat,
// honoring a collector verdict when one is supplied.
func (s *LifecycleService) Health(ctx context.Context, agentID string, report *CollectorReport) (*AgentHealth, error) {
	agent, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}

	mode := domain.ModeIdle
	if hb, err := s.repo.LatestHeartbeat(ctx, agentID); err == nil && hb != nil {
		mode = hb.Mode
	}

	h := EvaluateHealth(agent, mode, report, s.now())
	return &h, nil
}

// authorize runs the shared admin + existence checks every action starts with.
func (s *LifecycleService) authorize(ctx context.Context, caller Principal, agentID string) (*domain.Agent, *ActionResult, error) {
	if !caller.IsAdmin {
		return nil, failure("Administrator privileges required"), domain.ErrUnauthorized
	}
	agent, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, failure(fmt.Sprintf("Agent %s not found", agentID)), fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	return agent, nil, nil
}

func (s *LifecycleService) buildEvent(agentID, eventType string, from, to domain.AgentState, meta domain.EventMetadata, at time.Time) *domain.LifecycleEvent {
	return &domain.LifecycleEvent{
		AgentID:   agentID,
		EventType: eventType,
		FromState: &from,
		ToState:   &to,
		Metadata:  domain.NewEventMetadata(meta),
		CreatedAt: at,
	}
}

// notify delivers an owner notification when requested. Failures are logged
// and attached as warnings, never propagated.
func (s *LifecycleService) notify(ctx context.Context, result *ActionResult, agent *domain.Agent, opts ActionOptions, title, message, severity string) {
	if !opts.SendNotification || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, agent.OwnerID, title, message, severity, true); err != nil {
		warn := fmt.Sprintf("owner notification failed: %v", err)
		result.Warnings = append(result.Warnings, warn)
		logger.WarnContext(ctx, "owner notification failed", "agent_id", agent.ID, "owner_id", agent.OwnerID, "error", err)
	}
}

func (s *LifecycleService) publishEvent(ctx context.Context, event *domain.LifecycleEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishEvent(ctx, event); err != nil {
		logger.WarnContext(ctx, "lifecycle event publish failed", "agent_id", event.AgentID, "error", err)
	}
}

func eventMeta(caller Principal, opts ActionOptions, defaultReason string) domain.EventMetadata {
	reason := opts.Reason
	if reason == "" {
		reason = defaultReason
	}
	return domain.EventMetadata{
		TriggeredBy: caller.ID,
		Reason:      reason,
		NotifyOwner: opts.SendNotification,
	}
}

func failure(reason string) *ActionResult {
	return &ActionResult{OK: false, Reason: reason}
}

// sanitizeDNSName lowercases the name and strips everything outside
// [a-z0-9-], collapsing the result into a DNS label.
func sanitizeDNSName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '.':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
