// Package mqtt delivers owner notifications over an MQTT broker. Dashboard
// and email bridge processes subscribe to the per-owner topics; the engine
// itself only publishes.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	redispubsub "github.com/VeriTeknik/pluggedin-app-sub006/internal/adapters/pubsub/redis"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/logger"
)

const (
	topicPrefix    = "fleet/notifications"
	publishTimeout = 5 * time.Second
)

type Notifier struct {
	client paho.Client
	dlq    *redispubsub.DeadLetter
}

type payload struct {
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	SendEmail bool      `json:"send_email"`
	SentAt    time.Time `json:"sent_at"`
}

// NewNotifier connects to the broker. dlq may be nil; then failed
// notifications are only logged.
func NewNotifier(brokerURL string, dlq *redispubsub.DeadLetter) (*Notifier, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("fleet-server-%d", time.Now().UnixNano()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	logger.Info("connected to MQTT broker", "broker", brokerURL)
	return &Notifier{client: client, dlq: dlq}, nil
}

// Notify publishes to fleet/notifications/{ownerID}. A failed publish lands
// in the dead-letter set and is returned so the caller can record a warning.
func (n *Notifier) Notify(ctx context.Context, ownerID, title, message, severity string, sendEmail bool) error {
	p := payload{
		OwnerID:   ownerID,
		Title:     title,
		Message:   message,
		Severity:  severity,
		SendEmail: sendEmail,
		SentAt:    time.Now(),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", topicPrefix, ownerID)
	token := n.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		deliveryErr := token.Error()
		if deliveryErr == nil {
			deliveryErr = fmt.Errorf("publish to %s timed out", topic)
		}
		n.deadLetter(ctx, p, deliveryErr)
		return deliveryErr
	}
	return nil
}

func (n *Notifier) deadLetter(ctx context.Context, p payload, cause error) {
	if n.dlq == nil {
		return
	}
	err := n.dlq.Add(ctx, redispubsub.DeadNotification{
		OwnerID:  p.OwnerID,
		Title:    p.Title,
		Message:  p.Message,
		Severity: p.Severity,
		Reason:   cause.Error(),
	})
	if err != nil {
		logger.Warn("dead letter write failed", "owner_id", p.OwnerID, "error", err)
	}
}

func (n *Notifier) Close() {
	n.client.Disconnect(250)
}
