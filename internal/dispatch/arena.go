package dispatch

import (
	"context"
	"fmt"
	"sync"

	"droneDeliveryCoordinator/models"
)

// slot is the arena entry for a drone holding a delivery. Its mutex serializes every
// transition on that drone; the running leg, if any, is cancelled through cancelLeg.
type slot struct {
	droneID    int64
	orderID    int64
	deliveryID int64

	mu        sync.Mutex
	cancelLeg context.CancelFunc
	legKind   models.LegKind
}

func (s *slot) stopLeg() {
	if s.cancelLeg != nil {
		s.cancelLeg()
		s.cancelLeg = nil
	}
}

// arena indexes active deliveries by drone id. A drone can be in at most one slot.
type arena struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

func newArena() *arena {
	return &arena{slots: make(map[int64]*slot)}
}

// claim reserves the drone for a new delivery.
func (a *arena) claim(droneID, orderID int64) (*slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.slots[droneID]; ok {
		return nil, fmt.Errorf("%w: drone %d is carrying order %d", models.ErrDroneUnavailable, droneID, cur.orderID)
	}
	s := &slot{droneID: droneID, orderID: orderID}
	a.slots[droneID] = s
	return s, nil
}

// adopt returns the drone's slot, creating one for an existing delivery if needed.
func (a *arena) adopt(d *models.Delivery) *slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.slots[d.DroneID]; ok {
		return cur
	}
	s := &slot{droneID: d.DroneID, orderID: d.OrderID, deliveryID: d.ID}
	a.slots[d.DroneID] = s
	return s
}

func (a *arena) get(droneID int64) (*slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[droneID]
	return s, ok
}

// release frees the drone, but only if s is still its slot.
func (a *arena) release(s *slot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.slots[s.droneID]; ok && cur == s {
		delete(a.slots, s.droneID)
	}
}

func (a *arena) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}
