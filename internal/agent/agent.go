// Package agent implements the standalone heartbeat emitter that runs
// next to a deployed workload and reports liveness to the fleet server.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/services"
)

type Agent struct {
	serverURL string
	agentID   string
	mode      domain.HeartbeatMode
	client    *http.Client
	startedAt time.Time
}

func New(serverURL, agentID, mode string) (*Agent, error) {
	m := domain.HeartbeatMode(mode)
	switch m {
	case domain.ModeEmergency, domain.ModeIdle, domain.ModeSleep:
	case "":
		m = domain.ModeIdle
	default:
		return nil, fmt.Errorf("unknown heartbeat mode %q", mode)
	}

	return &Agent{
		serverURL: serverURL,
		agentID:   agentID,
		mode:      m,
		client:    &http.Client{Timeout: 10 * time.Second},
		startedAt: time.Now(),
	}, nil
}

// Run emits heartbeats at the interval for the configured mode until
// the context is cancelled. A failed beat is retried on the next tick,
// missed beats are how the server detects an unhealthy agent.
func (a *Agent) Run(ctx context.Context) error {
	interval := services.ExpectedInterval(a.mode)

	// First beat immediately so a freshly provisioned agent activates
	// without waiting a full interval.
	if err := a.beat(ctx); err != nil {
		return fmt.Errorf("initial heartbeat: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.beat(ctx); err != nil {
				// Keep beating. The server marks us unhealthy if
				// enough ticks fail in a row.
				fmt.Printf("heartbeat failed: %v\n", err)
			}
		}
	}
}

type heartbeatPayload struct {
	Mode          string `json:"mode"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (a *Agent) beat(ctx context.Context) error {
	payload, err := json.Marshal(heartbeatPayload{
		Mode:          string(a.mode),
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/agents/%s/heartbeat", a.serverURL, a.agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
