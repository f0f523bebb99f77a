// Package fleet owns drone records and enforces the drone status machine:
//
//	IDLE -> DELIVERING -> ARRIVED -> RETURNING -> IDLE
//	IDLE <-> MAINTENANCE
//
// Every transition is a conditional UPDATE, so concurrent callers racing for the same
// drone see exactly one winner and losers change nothing.
package fleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

// DefaultMinBattery is the charge a drone needs before it may take an order.
const DefaultMinBattery = 20.0

type Registry struct {
	store *repository.Store
	log   *logrus.Entry
}

func NewRegistry(store *repository.Store, log *logrus.Entry) *Registry {
	return &Registry{store: store, log: log}
}

// WithStore returns a registry bound to another store, typically a transaction.
func (r *Registry) WithStore(s *repository.Store) *Registry {
	return &Registry{store: s, log: r.log}
}

// NewDrone is the payload for Register.
type NewDrone struct {
	RestaurantID string
	Name         string
	Model        string
	MaxPayloadKg float64
	MaxSpeedKmh  float64
	Home         models.Coordinates
}

// Validate checks the payload before it is stored or queued for approval.
func (n NewDrone) Validate() error {
	switch {
	case strings.TrimSpace(n.RestaurantID) == "":
		return fmt.Errorf("%w: restaurant id is required", models.ErrInvalidArgument)
	case strings.TrimSpace(n.Name) == "":
		return fmt.Errorf("%w: drone name is required", models.ErrInvalidArgument)
	case n.MaxPayloadKg < 0 || n.MaxSpeedKmh < 0:
		return fmt.Errorf("%w: capabilities must not be negative", models.ErrInvalidArgument)
	case !n.Home.Valid():
		return fmt.Errorf("%w: home coordinates out of range", models.ErrInvalidArgument)
	}
	return nil
}

// Register creates an IDLE, fully charged drone at its home position.
// It is reached only through an approved registration request.
func (r *Registry) Register(ctx context.Context, n NewDrone) (*models.Drone, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	d, err := r.store.Drones.Create(ctx, &models.Drone{
		RestaurantID:   n.RestaurantID,
		Name:           strings.TrimSpace(n.Name),
		Model:          strings.TrimSpace(n.Model),
		Status:         models.DroneStatusIdle,
		BatteryPercent: models.FullBattery,
		Home:           n.Home,
		MaxPayloadKg:   n.MaxPayloadKg,
		MaxSpeedKmh:    n.MaxSpeedKmh,
		Active:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("create drone: %w", err)
	}
	r.log.WithFields(logrus.Fields{"drone_id": d.ID, "restaurant_id": d.RestaurantID}).Info("drone registered")
	return d, nil
}

// Get returns a drone or models.ErrDroneNotFound.
func (r *Registry) Get(ctx context.Context, id int64) (*models.Drone, error) {
	d, err := r.store.Drones.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get drone %d: %w", id, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %d", models.ErrDroneNotFound, id)
	}
	return d, nil
}

// GetFor returns a drone the actor may manage.
func (r *Registry) GetFor(ctx context.Context, actor models.Actor, id int64) (*models.Drone, error) {
	d, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Authorize allows admins, the system, the owning restaurant and the drone itself.
func Authorize(actor models.Actor, d *models.Drone) error {
	if actor.Privileged() {
		return nil
	}
	if actor.Role == models.RoleRestaurant && actor.RestaurantID != "" && actor.RestaurantID == d.RestaurantID {
		return nil
	}
	if actor.IsDrone(d.ID) {
		return nil
	}
	return fmt.Errorf("%w: drone %d does not belong to caller", models.ErrPermissionDenied, d.ID)
}

func requireRestaurantScope(actor models.Actor, restaurantID string) error {
	if actor.Privileged() {
		return nil
	}
	if actor.Role == models.RoleRestaurant && actor.RestaurantID == restaurantID {
		return nil
	}
	return fmt.Errorf("%w: restaurant %s", models.ErrPermissionDenied, restaurantID)
}

// ListByRestaurant returns a restaurant's active fleet.
func (r *Registry) ListByRestaurant(ctx context.Context, actor models.Actor, restaurantID string) ([]models.Drone, error) {
	if err := requireRestaurantScope(actor, restaurantID); err != nil {
		return nil, err
	}
	return r.store.Drones.ListByRestaurant(ctx, restaurantID)
}

// ListAvailable returns drones of a restaurant that could take an order now.
func (r *Registry) ListAvailable(ctx context.Context, actor models.Actor, restaurantID string, minBattery float64) ([]models.Drone, error) {
	if err := requireRestaurantScope(actor, restaurantID); err != nil {
		return nil, err
	}
	if minBattery <= 0 {
		minBattery = DefaultMinBattery
	}
	return r.store.Drones.ListAvailable(ctx, restaurantID, minBattery)
}

// ListAll is the admin fleet listing.
func (r *Registry) ListAll(ctx context.Context, actor models.Actor, p repository.ListDronesAdminParams) ([]models.Drone, error) {
	if !actor.Privileged() {
		return nil, fmt.Errorf("%w: admin only", models.ErrPermissionDenied)
	}
	return r.store.Drones.ListAdmin(ctx, p)
}

// Assign binds an order to an IDLE drone with at least minBattery charge.
func (r *Registry) Assign(ctx context.Context, droneID, orderID int64, minBattery float64) error {
	ok, err := r.store.Drones.Assign(ctx, droneID, orderID, minBattery)
	if err != nil {
		return fmt.Errorf("assign drone %d: %w", droneID, err)
	}
	if ok {
		r.log.WithFields(logrus.Fields{"drone_id": droneID, "order_id": orderID}).Info("drone assigned")
		return nil
	}
	d, err := r.Get(ctx, droneID)
	if err != nil {
		return err
	}
	switch {
	case !d.Active:
		return fmt.Errorf("%w: drone %d is inactive", models.ErrDroneUnavailable, droneID)
	case d.Status != models.DroneStatusIdle:
		return fmt.Errorf("%w: drone %d is %s", models.ErrDroneUnavailable, droneID, d.Status)
	case d.BatteryPercent < minBattery:
		return fmt.Errorf("%w: drone %d battery %.1f%% below %.1f%%", models.ErrDroneUnavailable, droneID, d.BatteryPercent, minBattery)
	}
	return fmt.Errorf("%w: drone %d", models.ErrDroneUnavailable, droneID)
}

// transition performs a status compare-and-set. When it does not apply, the drone is
// left untouched; if it already sits in `to` the call reports false without error.
func (r *Registry) transition(ctx context.Context, id int64, from, to models.DroneStatus) (bool, error) {
	ok, err := r.store.Drones.CompareAndSetStatus(ctx, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update drone %d: %w", id, err)
	}
	if ok {
		r.log.WithFields(logrus.Fields{"drone_id": id, "from": from, "to": to}).Debug("drone status changed")
		return true, nil
	}
	d, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if d.Status == to && d.Active {
		return false, nil
	}
	return false, fmt.Errorf("%w: drone %d is %s, expected %s", models.ErrInvalidTransition, id, d.Status, from)
}

// MarkArrived moves DELIVERING to ARRIVED. Calling it on an ARRIVED drone is a no-op.
func (r *Registry) MarkArrived(ctx context.Context, droneID int64) (bool, error) {
	return r.transition(ctx, droneID, models.DroneStatusDelivering, models.DroneStatusArrived)
}

// StartReturn moves ARRIVED to RETURNING.
func (r *Registry) StartReturn(ctx context.Context, droneID int64) error {
	changed, err := r.transition(ctx, droneID, models.DroneStatusArrived, models.DroneStatusReturning)
	if err == nil && !changed {
		return fmt.Errorf("%w: drone %d is already returning", models.ErrInvalidTransition, droneID)
	}
	return err
}

// MarkReturned moves RETURNING to IDLE, clears the order and counts the delivery.
// Calling it on an IDLE drone with no order is a no-op.
func (r *Registry) MarkReturned(ctx context.Context, droneID int64) (bool, error) {
	ok, err := r.store.Drones.CompleteReturn(ctx, droneID)
	if err != nil {
		return false, fmt.Errorf("complete return of drone %d: %w", droneID, err)
	}
	if ok {
		r.log.WithField("drone_id", droneID).Info("drone back at base")
		return true, nil
	}
	d, err := r.Get(ctx, droneID)
	if err != nil {
		return false, err
	}
	if d.Status == models.DroneStatusIdle && d.AssignedOrderID == nil {
		return false, nil
	}
	return false, fmt.Errorf("%w: drone %d is %s, expected %s", models.ErrInvalidTransition, droneID, d.Status, models.DroneStatusReturning)
}

// SetMaintenance takes an IDLE drone out of service.
func (r *Registry) SetMaintenance(ctx context.Context, actor models.Actor, droneID int64) (*models.Drone, error) {
	if _, err := r.GetFor(ctx, actor, droneID); err != nil {
		return nil, err
	}
	if _, err := r.transition(ctx, droneID, models.DroneStatusIdle, models.DroneStatusMaintenance); err != nil {
		return nil, err
	}
	return r.Get(ctx, droneID)
}

// ClearMaintenance returns a drone in MAINTENANCE to IDLE.
func (r *Registry) ClearMaintenance(ctx context.Context, actor models.Actor, droneID int64) (*models.Drone, error) {
	if _, err := r.GetFor(ctx, actor, droneID); err != nil {
		return nil, err
	}
	if _, err := r.transition(ctx, droneID, models.DroneStatusMaintenance, models.DroneStatusIdle); err != nil {
		return nil, err
	}
	return r.Get(ctx, droneID)
}

// Deactivate retires a drone. Only IDLE drones may be retired; otherwise models.ErrDroneBusy.
func (r *Registry) Deactivate(ctx context.Context, droneID int64) error {
	ok, err := r.store.Drones.Deactivate(ctx, droneID)
	if err != nil {
		return fmt.Errorf("deactivate drone %d: %w", droneID, err)
	}
	if ok {
		r.log.WithField("drone_id", droneID).Info("drone deactivated")
		return nil
	}
	d, err := r.Get(ctx, droneID)
	if err != nil {
		return err
	}
	if !d.Active {
		return nil
	}
	return fmt.Errorf("%w: drone %d is %s", models.ErrDroneBusy, droneID, d.Status)
}

// RecordPosition stores one telemetry reading atomically.
func (r *Registry) RecordPosition(ctx context.Context, droneID int64, pos models.Coordinates, battery float64) error {
	if err := r.store.Drones.UpdatePosition(ctx, droneID, pos, battery); err != nil {
		return fmt.Errorf("record position of drone %d: %w", droneID, err)
	}
	return nil
}

// Recharge resets the battery to full.
func (r *Registry) Recharge(ctx context.Context, droneID int64) error {
	return r.store.Drones.SetBattery(ctx, droneID, models.FullBattery)
}
