// Package dispatch ties orders to drones: it ships orders, drives the simulated legs,
// records the delivery log and reacts to arrival, confirmation and return.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/fleet"
	"droneDeliveryCoordinator/internal/geo"
	"droneDeliveryCoordinator/internal/simulator"
	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

// OrderService is the order collaborator. Only SHIPPED and COMPLETED are ever requested.
type OrderService interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	SetStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
}

// Publisher fans telemetry and phase changes out to subscribers.
type Publisher interface {
	PublishSample(s models.TelemetrySample)
	PublishPhase(droneID, orderID int64, phase telemetry.Phase, status models.DroneStatus)
	CloseTopic(topic telemetry.Topic)
}

// TimeoutAction is applied to deliveries left unconfirmed past the arrival timeout.
type TimeoutAction string

const (
	TimeoutEscalate    TimeoutAction = "escalate"
	TimeoutAutoConfirm TimeoutAction = "auto_confirm"
)

// Config tunes dispatch rules and how legs are driven.
type Config struct {
	MinBatteryPercent float64
	MaxRangeKm        float64 // 0 disables the range check
	// ExternalTelemetry disables the in-process simulator; legs are then driven by
	// IngestTelemetry, NotifyArrived and NotifyReturned.
	ExternalTelemetry    bool
	RechargeOnReturn     bool
	ArrivalTimeout       time.Duration // 0 waits for confirmation forever
	ArrivalTimeoutAction TimeoutAction
}

// DefaultConfig returns the production defaults with the in-process simulator.
func DefaultConfig() Config {
	return Config{
		MinBatteryPercent:    fleet.DefaultMinBattery,
		MaxRangeKm:           20,
		ArrivalTimeoutAction: TimeoutEscalate,
	}
}

// Correlator links orders to drones for the whole outbound and return trip.
type Correlator struct {
	store     *repository.Store
	registry  *fleet.Registry
	orders    OrderService
	publisher Publisher
	source    simulator.Source
	cfg       Config
	log       *logrus.Entry
	now       func() time.Time

	arena  *arena
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Correlator. A nil source leaves legs to external telemetry.
func New(store *repository.Store, registry *fleet.Registry, orders OrderService, publisher Publisher,
	source simulator.Source, cfg Config, log *logrus.Entry) *Correlator {
	if cfg.MinBatteryPercent <= 0 {
		cfg.MinBatteryPercent = fleet.DefaultMinBattery
	}
	if cfg.ArrivalTimeoutAction == "" {
		cfg.ArrivalTimeoutAction = TimeoutEscalate
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Correlator{
		store:     store,
		registry:  registry,
		orders:    orders,
		publisher: publisher,
		source:    source,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		arena:     newArena(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ShipRequest asks for an order to be flown by a specific drone.
type ShipRequest struct {
	OrderID   int64
	DroneID   int64
	PayloadKg float64 // 0 uses the order's payload
}

// ShipResult describes the started delivery.
type ShipResult struct {
	Delivery             *models.Delivery
	EstimatedDistanceKm  float64
	EstimatedDurationMin int
}

// DeliveryLog is a delivery with its recorded route.
type DeliveryLog struct {
	Delivery *models.Delivery
	Route    []models.RoutePoint
}

func orderServiceError(op string, orderID int64, err error) error {
	if errors.Is(err, models.ErrOrderNotFound) {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	return fmt.Errorf("%w: %s order %d: %w", models.ErrOrderService, op, orderID, err)
}

// ShipOrder assigns a PROCESSING order to an IDLE drone and launches the outbound leg.
// Precondition failures change nothing. If the order service cannot be told the order
// shipped, the delivery still proceeds and the error is returned together with the result;
// the status update is retried by ReconcileOrderStatuses.
func (c *Correlator) ShipOrder(ctx context.Context, actor models.Actor, req ShipRequest) (*ShipResult, error) {
	if !actor.Is(models.RoleRestaurant, models.RoleAdmin, models.RoleSystem) {
		return nil, fmt.Errorf("%w: only restaurants ship orders", models.ErrPermissionDenied)
	}
	order, err := c.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, orderServiceError("get", req.OrderID, err)
	}
	if order.Status != models.OrderStatusProcessing {
		return nil, fmt.Errorf("%w: order %d is %s", models.ErrOrderNotProcessing, order.ID, order.Status)
	}
	if actor.Role == models.RoleRestaurant && order.RestaurantID != "" && order.RestaurantID != actor.RestaurantID {
		return nil, fmt.Errorf("%w: order %d belongs to another restaurant", models.ErrPermissionDenied, order.ID)
	}
	drone, err := c.registry.GetFor(ctx, actor, req.DroneID)
	if err != nil {
		return nil, err
	}
	if order.RestaurantID != "" && order.RestaurantID != drone.RestaurantID {
		return nil, fmt.Errorf("%w: drone %d is not in the fleet of order %d", models.ErrInvalidArgument, drone.ID, order.ID)
	}
	if !order.Destination.Valid() {
		return nil, fmt.Errorf("%w: order %d has no valid destination", models.ErrInvalidArgument, order.ID)
	}

	origin := drone.Position()
	distance := geo.Distance(origin, order.Destination)
	payload := req.PayloadKg
	if payload <= 0 {
		payload = order.PayloadKg
	}
	if payload > drone.MaxPayloadKg {
		return nil, fmt.Errorf("%w: payload %.2f kg over drone limit %.2f kg", models.ErrCapacityExceeded, payload, drone.MaxPayloadKg)
	}
	if c.cfg.MaxRangeKm > 0 && distance > c.cfg.MaxRangeKm {
		return nil, fmt.Errorf("%w: %.2f km exceeds range %.2f km", models.ErrCapacityExceeded, distance, c.cfg.MaxRangeKm)
	}
	duration := simulator.EstimateDurationMinutes(distance, drone.MaxSpeedKmh)

	s, err := c.arena.claim(drone.ID, order.ID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var delivery *models.Delivery
	err = c.store.InTx(ctx, func(tx *repository.Store) error {
		open, err := tx.Deliveries.GetOpenByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("%w: order %d is already in flight with drone %d", models.ErrOrderNotProcessing, order.ID, open.DroneID)
		}
		if err := c.registry.WithStore(tx).Assign(ctx, drone.ID, order.ID, c.cfg.MinBatteryPercent); err != nil {
			return err
		}
		delivery, err = tx.Deliveries.Create(ctx, &models.Delivery{
			OrderID:              order.ID,
			DroneID:              drone.ID,
			RestaurantID:         drone.RestaurantID,
			CustomerID:           order.CustomerID,
			Origin:               origin,
			Destination:          order.Destination,
			DestinationAddress:   order.DestinationAddress,
			EstimatedDistanceKm:  distance,
			EstimatedDurationMin: duration,
			Phase:                models.DeliveryPhaseOutbound,
			BatteryStart:         drone.BatteryPercent,
			PendingOrderStatus:   models.OrderStatusShipped,
			StartedAt:            c.now().UTC(),
		})
		return err
	})
	if err != nil {
		c.arena.release(s)
		return nil, err
	}
	s.deliveryID = delivery.ID

	log := c.log.WithFields(logrus.Fields{"drone_id": drone.ID, "order_id": order.ID, "delivery_id": delivery.ID})
	log.WithFields(logrus.Fields{"distance_km": distance, "eta_min": duration}).Info("order shipped")

	syncErr := c.pushOrderStatus(ctx, delivery, models.OrderStatusShipped)
	if syncErr == nil {
		delivery.PendingOrderStatus = ""
	}
	c.startLeg(s, simulator.Leg{
		DroneID: drone.ID,
		OrderID: order.ID,
		Kind:    models.LegOutbound,
		Start:   origin,
		Target:  order.Destination,
		Battery: drone.BatteryPercent,
	})
	return &ShipResult{Delivery: delivery, EstimatedDistanceKm: distance, EstimatedDurationMin: duration}, syncErr
}

// pushOrderStatus tells the order service and clears the pending marker on success.
func (c *Correlator) pushOrderStatus(ctx context.Context, d *models.Delivery, status models.OrderStatus) error {
	if err := c.orders.SetStatus(ctx, d.OrderID, status); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"order_id": d.OrderID, "status": status}).
			Warn("order status update failed, will retry")
		return orderServiceError("update", d.OrderID, err)
	}
	if err := c.store.Deliveries.SetPendingOrderStatus(ctx, d.ID, ""); err != nil {
		c.log.WithError(err).WithField("delivery_id", d.ID).Warn("clear pending order status")
	}
	return nil
}

// NotifyArrived records arrival at the destination. Repeated calls are no-ops.
func (c *Correlator) NotifyArrived(ctx context.Context, actor models.Actor, droneID int64) (*models.Delivery, error) {
	if !actor.Is(models.RoleDrone, models.RoleAdmin, models.RoleSystem) {
		return nil, fmt.Errorf("%w: only drones report arrival", models.ErrPermissionDenied)
	}
	if err := c.checkDrone(ctx, actor, droneID); err != nil {
		return nil, err
	}
	return c.arrive(ctx, droneID)
}

func (c *Correlator) arrive(ctx context.Context, droneID int64) (*models.Delivery, error) {
	s, err := c.slotFor(ctx, droneID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := openDelivery(ctx, c.store, droneID)
	if err != nil {
		return nil, err
	}
	if d.Phase != models.DeliveryPhaseOutbound {
		// already arrived (or further along)
		return d, nil
	}
	var changed bool
	err = c.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		if _, err = c.registry.WithStore(tx).MarkArrived(ctx, droneID); err != nil {
			return err
		}
		if changed, err = tx.Deliveries.MarkArrived(ctx, d.ID, c.now()); err != nil {
			return err
		}
		d, err = tx.Deliveries.GetByID(ctx, d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		if s.legKind == models.LegOutbound {
			s.stopLeg()
		}
		c.publisher.PublishPhase(droneID, d.OrderID, telemetry.PhaseArrived, models.DroneStatusArrived)
		c.log.WithFields(logrus.Fields{"drone_id": droneID, "order_id": d.OrderID}).Info("drone arrived, awaiting confirmation")
	}
	return d, nil
}

// ConfirmDelivery is the customer's receipt. The order is marked COMPLETED first; if the
// order service refuses, nothing else changes. Then the drone starts back home. The order
// service update is idempotent, so a confirmation whose local step failed can be repeated.
func (c *Correlator) ConfirmDelivery(ctx context.Context, actor models.Actor, orderID int64) (*models.Delivery, error) {
	if !actor.Is(models.RoleCustomer, models.RoleAdmin, models.RoleSystem) {
		return nil, fmt.Errorf("%w: only the customer confirms delivery", models.ErrPermissionDenied)
	}
	d, err := c.store.Deliveries.GetOpenByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get delivery of order %d: %w", orderID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: order %d", models.ErrDeliveryNotFound, orderID)
	}
	if actor.Role == models.RoleCustomer && d.CustomerID != "" && d.CustomerID != actor.Subject {
		return nil, fmt.Errorf("%w: order %d belongs to another customer", models.ErrPermissionDenied, orderID)
	}

	s, err := c.slotFor(ctx, d.DroneID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	drone, err := c.registry.Get(ctx, d.DroneID)
	if err != nil {
		return nil, err
	}
	if drone.Status != models.DroneStatusArrived || drone.AssignedOrderID == nil || *drone.AssignedOrderID != orderID {
		return nil, fmt.Errorf("%w: drone %d is %s, expected %s", models.ErrInvalidTransition, drone.ID, drone.Status, models.DroneStatusArrived)
	}
	if err := c.orders.SetStatus(ctx, orderID, models.OrderStatusCompleted); err != nil {
		return nil, orderServiceError("complete", orderID, err)
	}

	err = c.store.InTx(ctx, func(tx *repository.Store) error {
		if err := c.registry.WithStore(tx).StartReturn(ctx, drone.ID); err != nil {
			return err
		}
		if _, err := tx.Deliveries.MarkReturning(ctx, d.ID, c.now()); err != nil {
			return err
		}
		// COMPLETED supersedes any SHIPPED still owed to the order service.
		if err := tx.Deliveries.SetPendingOrderStatus(ctx, d.ID, ""); err != nil {
			return err
		}
		d, err = tx.Deliveries.GetByID(ctx, d.ID)
		return err
	})
	if err != nil {
		// The order service already holds COMPLETED; a repeated confirmation heals this.
		c.log.WithError(err).WithFields(logrus.Fields{"drone_id": drone.ID, "order_id": orderID}).
			Error("order completed but drone return not recorded")
		return nil, err
	}
	c.publisher.PublishPhase(drone.ID, orderID, telemetry.PhaseReturning, models.DroneStatusReturning)
	c.log.WithFields(logrus.Fields{"drone_id": drone.ID, "order_id": orderID, "by": actor.Subject}).Info("delivery confirmed, returning")

	c.startLeg(s, simulator.Leg{
		DroneID: drone.ID,
		OrderID: orderID,
		Kind:    models.LegReturn,
		Start:   drone.Position(),
		Target:  drone.Home,
		Battery: drone.BatteryPercent,
	})
	return d, nil
}

// NotifyReturned records the drone back at base. Repeated calls are no-ops.
func (c *Correlator) NotifyReturned(ctx context.Context, actor models.Actor, droneID int64) (*models.Drone, error) {
	if !actor.Is(models.RoleDrone, models.RoleAdmin, models.RoleSystem) {
		return nil, fmt.Errorf("%w: only drones report return", models.ErrPermissionDenied)
	}
	if err := c.checkDrone(ctx, actor, droneID); err != nil {
		return nil, err
	}
	return c.returned(ctx, droneID)
}

func (c *Correlator) returned(ctx context.Context, droneID int64) (*models.Drone, error) {
	s, err := c.slotFor(ctx, droneID)
	if errors.Is(err, models.ErrDeliveryNotFound) {
		// No delivery in flight: only an IDLE drone makes this a no-op.
		if _, err := c.registry.MarkReturned(ctx, droneID); err != nil {
			return nil, err
		}
		return c.registry.Get(ctx, droneID)
	}
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := c.store.Deliveries.GetOpenByDrone(ctx, droneID)
	if err != nil {
		return nil, err
	}
	var actualKm float64
	if d != nil {
		route, err := c.store.Deliveries.Route(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		actualKm = routeLength(d.Origin, route)
	}

	var changed bool
	err = c.store.InTx(ctx, func(tx *repository.Store) error {
		reg := c.registry.WithStore(tx)
		before, err := reg.Get(ctx, droneID)
		if err != nil {
			return err
		}
		if changed, err = reg.MarkReturned(ctx, droneID); err != nil {
			return err
		}
		if d != nil && d.Phase == models.DeliveryPhaseReturning {
			_, err = tx.Deliveries.Close(ctx, d.ID, c.now(), actualKm, before.BatteryPercent)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.stopLeg()
	c.arena.release(s)
	if c.cfg.RechargeOnReturn {
		if err := c.registry.Recharge(ctx, droneID); err != nil {
			c.log.WithError(err).WithField("drone_id", droneID).Warn("recharge failed")
		}
	}
	if changed {
		c.publisher.PublishPhase(droneID, s.orderID, telemetry.PhaseIdle, models.DroneStatusIdle)
		c.publisher.CloseTopic(telemetry.OrderTopic(s.orderID))
		c.log.WithFields(logrus.Fields{"drone_id": droneID, "order_id": s.orderID, "actual_km": actualKm}).Info("delivery closed")
	}
	return c.registry.Get(ctx, droneID)
}

// checkDrone restricts drone callers to their own drone.
func (c *Correlator) checkDrone(ctx context.Context, actor models.Actor, droneID int64) error {
	if actor.Role != models.RoleDrone {
		return nil
	}
	_, err := c.registry.GetFor(ctx, actor, droneID)
	return err
}

func routeLength(origin models.Coordinates, route []models.RoutePoint) float64 {
	pts := make([]models.Coordinates, 0, len(route)+1)
	pts = append(pts, origin)
	for _, p := range route {
		pts = append(pts, models.Coordinates{Lat: p.Lat, Lng: p.Lng})
	}
	return geo.PathLength(pts)
}

func openDelivery(ctx context.Context, store *repository.Store, droneID int64) (*models.Delivery, error) {
	d, err := store.Deliveries.GetOpenByDrone(ctx, droneID)
	if err != nil {
		return nil, fmt.Errorf("get delivery of drone %d: %w", droneID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: drone %d has no delivery in flight", models.ErrDeliveryNotFound, droneID)
	}
	return d, nil
}

// slotFor returns the drone's arena slot, adopting an open delivery that has none
// (after a restart, or when legs are driven externally).
func (c *Correlator) slotFor(ctx context.Context, droneID int64) (*slot, error) {
	if s, ok := c.arena.get(droneID); ok {
		return s, nil
	}
	d, err := openDelivery(ctx, c.store, droneID)
	if err != nil {
		return nil, err
	}
	return c.arena.adopt(d), nil
}

// IngestTelemetry accepts a reading from an external telemetry source. It is recorded
// and published like a simulated tick but never decides arrival.
func (c *Correlator) IngestTelemetry(ctx context.Context, actor models.Actor, sample models.TelemetrySample) error {
	if !actor.Is(models.RoleDrone, models.RoleAdmin, models.RoleSystem) {
		return fmt.Errorf("%w: only drones report telemetry", models.ErrPermissionDenied)
	}
	if !c.cfg.ExternalTelemetry {
		return fmt.Errorf("%w: telemetry is simulated in-process", models.ErrInvalidArgument)
	}
	if !sample.Position().Valid() {
		return fmt.Errorf("%w: coordinates out of range", models.ErrInvalidArgument)
	}
	if err := c.checkDrone(ctx, actor, sample.DroneID); err != nil {
		return err
	}
	d, err := openDelivery(ctx, c.store, sample.DroneID)
	if err != nil {
		return err
	}
	sample.OrderID = d.OrderID
	sample.Terminal = false
	sample.Leg = models.LegOutbound
	if d.Phase == models.DeliveryPhaseReturning {
		sample.Leg = models.LegReturn
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = c.now().UTC()
	}
	return c.record(ctx, d.ID, sample)
}

// GetDelivery returns the latest delivery log of an order.
func (c *Correlator) GetDelivery(ctx context.Context, actor models.Actor, orderID int64) (*DeliveryLog, error) {
	d, err := c.store.Deliveries.GetLatestByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get delivery of order %d: %w", orderID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: order %d", models.ErrDeliveryNotFound, orderID)
	}
	switch {
	case actor.Privileged(), actor.IsDrone(d.DroneID):
	case actor.Role == models.RoleRestaurant && actor.RestaurantID == d.RestaurantID:
	case actor.Role == models.RoleCustomer && (d.CustomerID == "" || d.CustomerID == actor.Subject):
	default:
		return nil, fmt.Errorf("%w: delivery of order %d", models.ErrPermissionDenied, orderID)
	}
	route, err := c.store.Deliveries.Route(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &DeliveryLog{Delivery: d, Route: route}, nil
}

// GetRoute returns the flown path of an order's latest delivery, under the same access
// rules as GetDelivery.
func (c *Correlator) GetRoute(ctx context.Context, actor models.Actor, orderID int64) ([]models.RoutePoint, error) {
	l, err := c.GetDelivery(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return l.Route, nil
}

// ActiveDeliveries returns how many drones currently hold a delivery slot.
func (c *Correlator) ActiveDeliveries() int {
	return c.arena.len()
}

// Close stops every running leg and waits for them to exit. State stays persisted so
// Recover can resume after restart.
func (c *Correlator) Close() {
	c.cancel()
	c.wg.Wait()
}
