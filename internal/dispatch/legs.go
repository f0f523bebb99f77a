package dispatch

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/simulator"
	"droneDeliveryCoordinator/models"
)

// startLeg launches the simulated flight for s. Callers hold s.mu.
func (c *Correlator) startLeg(s *slot, leg simulator.Leg) {
	s.stopLeg()
	s.legKind = leg.Kind
	if c.cfg.ExternalTelemetry || c.source == nil || c.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	s.cancelLeg = cancel
	deliveryID := s.deliveryID

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		err := c.source.Run(ctx, leg, func(sample models.TelemetrySample) error {
			// A tick racing a stopped leg must not write a position after the transition.
			s.mu.Lock()
			defer s.mu.Unlock()
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.record(ctx, deliveryID, sample)
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.log.WithError(err).WithField("drone_id", leg.DroneID).Error("leg aborted")
			}
			return
		}
		c.finishLeg(ctx, s, leg)
	}()
}

// finishLeg applies the transition a completed leg implies, unless the leg was stopped
// or the slot has since been replaced.
func (c *Correlator) finishLeg(ctx context.Context, s *slot, leg simulator.Leg) {
	if ctx.Err() != nil {
		return
	}
	if cur, ok := c.arena.get(leg.DroneID); !ok || cur != s {
		return
	}
	log := c.log.WithFields(logrus.Fields{"drone_id": leg.DroneID, "order_id": leg.OrderID})
	var err error
	switch leg.Kind {
	case models.LegOutbound:
		_, err = c.arrive(c.ctx, leg.DroneID)
	case models.LegReturn:
		_, err = c.returned(c.ctx, leg.DroneID)
	}
	if err != nil {
		log.WithError(err).Error("leg completion not applied")
	}
}

// record stores one reading on the drone and in the route, then publishes it. Failures
// are joined and returned; publishing always happens.
func (c *Correlator) record(ctx context.Context, deliveryID int64, sample models.TelemetrySample) error {
	var errs []error
	if err := c.registry.RecordPosition(ctx, sample.DroneID, sample.Position(), sample.BatteryPercent); err != nil {
		errs = append(errs, err)
	}
	err := c.store.Deliveries.AppendRoutePoint(ctx, deliveryID, models.RoutePoint{
		Leg:            sample.Leg,
		Lat:            sample.Lat,
		Lng:            sample.Lng,
		BatteryPercent: sample.BatteryPercent,
		SpeedKmh:       sample.SpeedKmh,
		RecordedAt:     sample.Timestamp,
	})
	if err != nil {
		errs = append(errs, err)
	}
	c.publisher.PublishSample(sample)
	return errors.Join(errs...)
}

// Recover adopts every open delivery after a restart and resumes its leg from the
// drone's last recorded position. Deliveries awaiting confirmation just wait.
func (c *Correlator) Recover(ctx context.Context) (int, error) {
	open, err := c.store.Deliveries.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	resumed := 0
	for i := range open {
		d := &open[i]
		s := c.arena.adopt(d)
		s.mu.Lock()
		err := c.resume(ctx, s, d)
		s.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		c.log.WithField("deliveries", resumed).Info("recovered deliveries in flight")
	}
	return resumed, errors.Join(errs...)
}

func (c *Correlator) resume(ctx context.Context, s *slot, d *models.Delivery) error {
	drone, err := c.registry.Get(ctx, d.DroneID)
	if err != nil {
		return err
	}
	leg := simulator.Leg{DroneID: drone.ID, OrderID: d.OrderID, Start: drone.Position(), Battery: drone.BatteryPercent}
	switch d.Phase {
	case models.DeliveryPhaseOutbound:
		leg.Kind, leg.Target = models.LegOutbound, d.Destination
	case models.DeliveryPhaseReturning:
		leg.Kind, leg.Target = models.LegReturn, drone.Home
	default:
		return nil
	}
	c.startLeg(s, leg)
	return nil
}
