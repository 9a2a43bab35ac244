package domain

import "time"

// HeartbeatMode is the operating tempo an agent reports with each beat.
type HeartbeatMode string

const (
	ModeEmergency HeartbeatMode = "EMERGENCY"
	ModeIdle      HeartbeatMode = "IDLE"
	ModeSleep     HeartbeatMode = "SLEEP"
)

// Heartbeat is a liveness signal written by the agent itself. Immutable once
// stored; removed only by cascade when the agent is deleted.
type Heartbeat struct {
	ID            int64         `json:"id" gorm:"primaryKey"`
	AgentID       string        `json:"agent_id" gorm:"type:uuid;index;not null"`
	Mode          HeartbeatMode `json:"mode"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	CreatedAt     time.Time     `json:"created_at" gorm:"index"`

	Agent Agent `json:"-" gorm:"foreignKey:AgentID;references:ID;constraint:OnDelete:CASCADE"`
}

func (Heartbeat) TableName() string {
	return "heartbeats"
}

// HealthAlert is published on the event bus when the fleet monitor observes a
// health change, and forwarded to dashboard websocket clients.
type HealthAlert struct {
	AgentID         string        `json:"agent_id"`
	AgentName       string        `json:"agent_name"`
	Mode            HeartbeatMode `json:"mode"`
	Healthy         bool          `json:"healthy"`
	LastHeartbeatAt *time.Time    `json:"last_heartbeat_at"`
	ObservedAt      time.Time     `json:"observed_at"`
}
