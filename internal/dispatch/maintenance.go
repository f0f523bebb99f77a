package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/models"
)

// ReconcileOrderStatuses retries order status updates that did not reach the order
// service. It returns how many were delivered.
func (c *Correlator) ReconcileOrderStatuses(ctx context.Context) (int, error) {
	pending, err := c.store.Deliveries.ListPendingOrderStatus(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	done := 0
	for i := range pending {
		pushed, err := c.reconcile(ctx, &pending[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pushed {
			done++
		}
	}
	if done > 0 {
		c.log.WithField("orders", done).Info("order statuses reconciled")
	}
	return done, errors.Join(errs...)
}

// reconcile pushes one pending status while holding the drone's slot, so a concurrent
// confirmation cannot be overwritten by a stale SHIPPED.
func (c *Correlator) reconcile(ctx context.Context, listed *models.Delivery) (bool, error) {
	s, err := c.slotFor(ctx, listed.DroneID)
	switch {
	case err == nil:
		s.mu.Lock()
		defer s.mu.Unlock()
	case !errors.Is(err, models.ErrDeliveryNotFound):
		return false, err
	}
	d, err := c.store.Deliveries.GetByID(ctx, listed.ID)
	if err != nil {
		return false, fmt.Errorf("get delivery %d: %w", listed.ID, err)
	}
	if d == nil || d.PendingOrderStatus == "" {
		return false, nil
	}
	// SHIPPED is moot once the customer has confirmed.
	if d.PendingOrderStatus == models.OrderStatusShipped &&
		d.Phase != models.DeliveryPhaseOutbound && d.Phase != models.DeliveryPhaseAwaitingConfirmation {
		return false, c.store.Deliveries.SetPendingOrderStatus(ctx, d.ID, "")
	}
	if err := c.pushOrderStatus(ctx, d, d.PendingOrderStatus); err != nil {
		return false, err
	}
	return true, nil
}

// SweepArrivalTimeouts applies the configured action to deliveries waiting for
// confirmation longer than the arrival timeout. Escalation happens once per delivery.
func (c *Correlator) SweepArrivalTimeouts(ctx context.Context) (int, error) {
	if c.cfg.ArrivalTimeout <= 0 {
		return 0, nil
	}
	stale, err := c.store.Deliveries.ListAwaitingSince(ctx, c.now().Add(-c.cfg.ArrivalTimeout))
	if err != nil {
		return 0, err
	}
	var errs []error
	handled := 0
	for i := range stale {
		d := &stale[i]
		log := c.log.WithFields(logrus.Fields{"drone_id": d.DroneID, "order_id": d.OrderID, "arrived_at": d.ArrivedAt})
		switch c.cfg.ArrivalTimeoutAction {
		case TimeoutAutoConfirm:
			if _, err := c.ConfirmDelivery(ctx, models.SystemActor, d.OrderID); err != nil {
				errs = append(errs, err)
				continue
			}
			log.Warn("delivery auto-confirmed after arrival timeout")
		default:
			changed, err := c.store.Deliveries.MarkEscalated(ctx, d.ID, c.now())
			if err != nil {
				errs = append(errs, fmt.Errorf("escalate delivery %d: %w", d.ID, err))
				continue
			}
			if !changed {
				continue
			}
			log.Warn("delivery unconfirmed past arrival timeout")
			c.publisher.PublishPhase(d.DroneID, d.OrderID, telemetry.PhaseEscalated, models.DroneStatusArrived)
		}
		handled++
	}
	return handled, errors.Join(errs...)
}
