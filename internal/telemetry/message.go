package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"droneDeliveryCoordinator/models"
)

// MessageType distinguishes position updates from delivery phase changes.
type MessageType string

const (
	MessagePosition MessageType = "POSITION"
	MessagePhase    MessageType = "PHASE"
)

// Phase is a delivery status change announced to subscribers.
type Phase string

const (
	PhaseArrived   Phase = "ARRIVED"
	PhaseReturning Phase = "RETURNING"
	PhaseIdle      Phase = "IDLE"
	PhaseEscalated Phase = "ESCALATED"
)

// Message is what subscribers receive.
type Message struct {
	ID          string                  `json:"id"`
	Type        MessageType             `json:"type"`
	DroneID     int64                   `json:"drone_id"`
	OrderID     int64                   `json:"order_id"`
	Sample      *models.TelemetrySample `json:"sample,omitempty"`
	Phase       Phase                   `json:"phase,omitempty"`
	DroneStatus models.DroneStatus      `json:"drone_status,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Topic addresses a stream: one per drone and one per order.
type Topic string

func DroneTopic(droneID int64) Topic {
	return Topic(fmt.Sprintf("drone/%d", droneID))
}

func OrderTopic(orderID int64) Topic {
	return Topic(fmt.Sprintf("order/%d", orderID))
}

func newPositionMessage(s models.TelemetrySample) Message {
	sample := s
	return Message{
		ID:        uuid.NewString(),
		Type:      MessagePosition,
		DroneID:   s.DroneID,
		OrderID:   s.OrderID,
		Sample:    &sample,
		Timestamp: s.Timestamp,
	}
}

func newPhaseMessage(droneID, orderID int64, phase Phase, status models.DroneStatus) Message {
	return Message{
		ID:          uuid.NewString(),
		Type:        MessagePhase,
		DroneID:     droneID,
		OrderID:     orderID,
		Phase:       phase,
		DroneStatus: status,
		Timestamp:   time.Now().UTC(),
	}
}
