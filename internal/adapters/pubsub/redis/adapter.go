package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/logger"
)

const (
	EventChannel = "fleet:events"
	AlertChannel = "fleet:alerts"
)

// Adapter fans lifecycle events and health alerts out over redis pub/sub so
// every server instance can feed its own websocket clients.
type Adapter struct {
	client *redis.Client
}

func NewAdapter(url string) (*Adapter, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return &Adapter{client: client}, client, nil
}

func (a *Adapter) PublishEvent(ctx context.Context, event *domain.LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return a.client.Publish(ctx, EventChannel, data).Err()
}

func (a *Adapter) PublishAlert(ctx context.Context, alert *domain.HealthAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return a.client.Publish(ctx, AlertChannel, data).Err()
}

func (a *Adapter) SubscribeEvents(ctx context.Context) (<-chan domain.LifecycleEvent, error) {
	pubsub := a.client.Subscribe(ctx, EventChannel)
	ch := make(chan domain.LifecycleEvent)

	go func() {
		defer pubsub.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var event domain.LifecycleEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warn("malformed lifecycle event payload", "error", err)
					continue
				}
				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (a *Adapter) SubscribeAlerts(ctx context.Context) (<-chan domain.HealthAlert, error) {
	pubsub := a.client.Subscribe(ctx, AlertChannel)
	ch := make(chan domain.HealthAlert)

	go func() {
		defer pubsub.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var alert domain.HealthAlert
				if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
					logger.Warn("malformed health alert payload", "error", err)
					continue
				}
				select {
				case ch <- alert:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
