package domain

import (
	"time"

	"gorm.io/datatypes"
)

type AgentState string

const (
	AgentStateNew         AgentState = "NEW"
	AgentStateProvisioned AgentState = "PROVISIONED"
	AgentStateActive      AgentState = "ACTIVE"
	AgentStateDraining    AgentState = "DRAINING"
	AgentStateTerminated  AgentState = "TERMINATED"
	AgentStateKilled      AgentState = "KILLED"
)

// Valid reports whether s is one of the six known lifecycle states.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateNew, AgentStateProvisioned, AgentStateActive,
		AgentStateDraining, AgentStateTerminated, AgentStateKilled:
		return true
	}
	return false
}

// Terminal reports whether s is an end state. Terminal agents can only be deleted.
func (s AgentState) Terminal() bool {
	return s == AgentStateTerminated || s == AgentStateKilled
}

// transitions is the set of legal state changes. KILLED is reachable from any
// non-terminal state and is handled in CanTransition rather than listed per row.
var transitions = map[AgentState][]AgentState{
	AgentStateNew:         {AgentStateProvisioned, AgentStateTerminated},
	AgentStateProvisioned: {AgentStateActive, AgentStateTerminated},
	AgentStateActive:      {AgentStateDraining, AgentStateTerminated},
	AgentStateDraining:    {AgentStateActive, AgentStateTerminated},
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to AgentState) bool {
	if from.Terminal() {
		return false
	}
	if to == AgentStateKilled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AgentMetadata is the structured per-agent bag.
// IntentionallySuspended distinguishes an operator-initiated suspension from
// an agent that is draining on its own; a heartbeat never reactivates an
// intentionally suspended agent.
type AgentMetadata struct {
	IntentionallySuspended bool   `json:"intentionally_suspended"`
	SuspendedBy            string `json:"suspended_by,omitempty"`
	AgentVersion           string `json:"agent_version,omitempty"`
	Environment            string `json:"environment,omitempty"`
}

// NewAgentMetadata wraps m for storage in the agent's JSON column.
func NewAgentMetadata(m AgentMetadata) datatypes.JSONType[AgentMetadata] {
	return datatypes.NewJSONType(m)
}

type Agent struct {
	ID      string `json:"id" gorm:"primaryKey;type:uuid"`
	Name    string `json:"name"`
	DNSName string `json:"dns_name" gorm:"uniqueIndex"`
	OwnerID string `json:"owner_id" gorm:"index"`

	State AgentState `json:"state" gorm:"index"`

	// Deployment reference. Empty strings mean the agent was never deployed.
	Namespace      string `json:"namespace"`
	DeploymentName string `json:"deployment_name"`

	Metadata datatypes.JSONType[AgentMetadata] `json:"metadata"`

	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`

	CreatedAt     time.Time  `json:"created_at"`
	ProvisionedAt *time.Time `json:"provisioned_at"`
	ActivatedAt   *time.Time `json:"activated_at"`
	TerminatedAt  *time.Time `json:"terminated_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// HasDeployment reports whether the agent ever had deployment infrastructure.
func (a *Agent) HasDeployment() bool {
	return a.DeploymentName != "" && a.Namespace != ""
}
