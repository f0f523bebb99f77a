package dispatch

import (
	"context"
	"fmt"

	"droneDeliveryCoordinator/models"
)

// CanWatchDrone reports whether actor may follow a drone's telemetry.
func (c *Correlator) CanWatchDrone(ctx context.Context, actor models.Actor, droneID int64) error {
	_, err := c.registry.GetFor(ctx, actor, droneID)
	return err
}

// CanWatchOrder reports whether actor may follow an order's delivery. Before the order
// ships the order service is asked who owns it.
func (c *Correlator) CanWatchOrder(ctx context.Context, actor models.Actor, orderID int64) error {
	if actor.Privileged() {
		return nil
	}
	restaurantID, customerID := "", ""
	d, err := c.store.Deliveries.GetLatestByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get delivery of order %d: %w", orderID, err)
	}
	if d != nil {
		restaurantID, customerID = d.RestaurantID, d.CustomerID
	} else {
		o, err := c.orders.GetOrder(ctx, orderID)
		if err != nil {
			return orderServiceError("get", orderID, err)
		}
		restaurantID, customerID = o.RestaurantID, o.CustomerID
	}
	switch {
	case actor.Role == models.RoleRestaurant && actor.RestaurantID == restaurantID:
		return nil
	case actor.Role == models.RoleCustomer && actor.Subject == customerID:
		return nil
	}
	return fmt.Errorf("%w: order %d", models.ErrPermissionDenied, orderID)
}
