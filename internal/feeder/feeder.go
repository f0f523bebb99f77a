// Package feeder plays the part of a drone when the coordinator runs with external
// telemetry: it polls its drone, flies the current leg and reports samples, arrival
// and return over gRPC.
package feeder

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	grpcserver "droneDeliveryCoordinator/internal/grpc"
	"droneDeliveryCoordinator/internal/simulator"
	"droneDeliveryCoordinator/models"
)

// Coordinator is the subset of the gRPC client a drone needs.
type Coordinator interface {
	GetDrone(ctx context.Context, in *grpcserver.DroneRequest) (*grpcserver.DroneResponse, error)
	GetDelivery(ctx context.Context, in *grpcserver.OrderRequest) (*grpcserver.DeliveryLogResponse, error)
	ReportTelemetry(ctx context.Context, in *grpcserver.TelemetryRequest) (*grpcserver.Empty, error)
	NotifyArrived(ctx context.Context, in *grpcserver.DroneRequest) (*grpcserver.DeliveryResponse, error)
	NotifyReturned(ctx context.Context, in *grpcserver.DroneRequest) (*grpcserver.DroneResponse, error)
}

type Feeder struct {
	client       Coordinator
	source       simulator.Source
	droneID      int64
	pollInterval time.Duration
	log          *logrus.Entry
}

func New(client Coordinator, source simulator.Source, droneID int64, pollInterval time.Duration, log *logrus.Entry) *Feeder {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Feeder{client: client, source: source, droneID: droneID, pollInterval: pollInterval, log: log.WithField("drone_id", droneID)}
}

// Run polls until ctx ends. Errors are logged and retried on the next poll.
func (f *Feeder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for {
		if _, err := f.Tick(ctx); err != nil && ctx.Err() == nil {
			f.log.WithError(err).Warn("feeder tick failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick inspects the drone once and flies whatever leg it is on to completion.
// It returns the leg flown, or "" when the drone had nothing to do.
func (f *Feeder) Tick(ctx context.Context) (models.LegKind, error) {
	resp, err := f.client.GetDrone(ctx, &grpcserver.DroneRequest{DroneID: f.droneID})
	if err != nil {
		return "", err
	}
	d := resp.Drone
	if d.AssignedOrderID == nil {
		return "", nil
	}
	orderID := *d.AssignedOrderID
	leg := simulator.Leg{
		DroneID: d.ID,
		OrderID: orderID,
		Start:   d.Position(),
		Battery: d.BatteryPercent,
	}
	switch d.Status {
	case models.DroneStatusDelivering:
		l, err := f.client.GetDelivery(ctx, &grpcserver.OrderRequest{OrderID: orderID})
		if err != nil {
			return "", err
		}
		leg.Kind = models.LegOutbound
		leg.Target = l.Delivery.Destination
	case models.DroneStatusReturning:
		leg.Kind = models.LegReturn
		leg.Target = d.Home
	default:
		return "", nil
	}

	f.log.WithFields(logrus.Fields{"order_id": orderID, "leg": leg.Kind}).Info("flying leg")
	err = f.source.Run(ctx, leg, func(s models.TelemetrySample) error {
		_, err := f.client.ReportTelemetry(ctx, &grpcserver.TelemetryRequest{Sample: s})
		return err
	})
	if err != nil {
		return "", err
	}
	if leg.Kind == models.LegOutbound {
		_, err = f.client.NotifyArrived(ctx, &grpcserver.DroneRequest{DroneID: f.droneID})
	} else {
		_, err = f.client.NotifyReturned(ctx, &grpcserver.DroneRequest{DroneID: f.droneID})
	}
	return leg.Kind, err
}
