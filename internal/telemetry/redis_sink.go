package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"droneDeliveryCoordinator/models"
)

// Channels shared with other services of the platform.
const (
	DroneEventsChannel    = "drone.events"
	DeliveryEventsChannel = "delivery.events"
)

// Event is the envelope mirrored onto the shared event channels.
type Event struct {
	EventType string    `json:"eventType"`
	DroneID   int64     `json:"droneId"`
	OrderID   int64     `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
}

// RedisSink republishes messages on Redis pub/sub and caches the latest sample per drone
// so other processes can serve telemetry without subscribing.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSink{client: client, ttl: ttl}
}

func DroneChannel(droneID int64) string {
	return fmt.Sprintf("drone.telemetry.%d", droneID)
}

func OrderChannel(orderID int64) string {
	return fmt.Sprintf("order.telemetry.%d", orderID)
}

func latestKey(droneID int64) string {
	return fmt.Sprintf("drone:telemetry:%d", droneID)
}

// Deliver implements Sink.
func (s *RedisSink) Deliver(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Publish(ctx, DroneChannel(m.DroneID), payload)
	pipe.Publish(ctx, OrderChannel(m.OrderID), payload)

	switch m.Type {
	case MessagePosition:
		if m.Sample != nil {
			sample, err := json.Marshal(m.Sample)
			if err != nil {
				return err
			}
			pipe.Set(ctx, latestKey(m.DroneID), sample, s.ttl)
		}
	case MessagePhase:
		if channel, eventType := eventFor(m.Phase); channel != "" {
			ev, err := json.Marshal(Event{EventType: eventType, DroneID: m.DroneID, OrderID: m.OrderID, Timestamp: m.Timestamp})
			if err != nil {
				return err
			}
			pipe.Publish(ctx, channel, ev)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

func eventFor(p Phase) (channel, eventType string) {
	switch p {
	case PhaseArrived:
		return DroneEventsChannel, "DRONE_ARRIVED"
	case PhaseReturning:
		return DeliveryEventsChannel, "DELIVERY_CONFIRMED"
	case PhaseIdle:
		return DeliveryEventsChannel, "DELIVERY_COMPLETED"
	case PhaseEscalated:
		return DeliveryEventsChannel, "DELIVERY_ESCALATED"
	}
	return "", ""
}

// Latest returns the cached sample for a drone, or nil when none is cached.
func (s *RedisSink) Latest(ctx context.Context, droneID int64) (*models.TelemetrySample, error) {
	raw, err := s.client.Get(ctx, latestKey(droneID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sample models.TelemetrySample
	if err := json.Unmarshal(raw, &sample); err != nil {
		return nil, err
	}
	return &sample, nil
}
