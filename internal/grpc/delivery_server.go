package grpcserver

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"droneDeliveryCoordinator/internal/auth"
	"droneDeliveryCoordinator/internal/dispatch"
	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

// DeliveryServer implements DeliveryService on top of the correlator and the
// telemetry broadcaster.
type DeliveryServer struct {
	Users       *repository.UserRepository
	Correlator  *dispatch.Correlator
	Broadcaster *telemetry.Broadcaster
	Log         *logrus.Entry
}

func (s *DeliveryServer) actor(ctx context.Context) (models.Actor, error) {
	a, err := auth.ActorFromContext(ctx, s.Users)
	return a, toStatus(err)
}

// ShipOrder assigns a drone to an order and launches it. If the delivery started
// but the order service could not be updated, the response still succeeds and
// carries a warning.
func (s *DeliveryServer) ShipOrder(ctx context.Context, req *ShipOrderRequest) (*ShipOrderResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.Correlator.ShipOrder(ctx, a, dispatch.ShipRequest{
		OrderID:   req.OrderID,
		DroneID:   req.DroneID,
		PayloadKg: req.PayloadKg,
	})
	if res == nil {
		return nil, toStatus(err)
	}
	resp := &ShipOrderResponse{
		Delivery:             res.Delivery,
		EstimatedDistanceKm:  res.EstimatedDistanceKm,
		EstimatedDurationMin: res.EstimatedDurationMin,
	}
	if err != nil {
		if !errors.Is(err, models.ErrOrderService) {
			return nil, toStatus(err)
		}
		resp.Warning = err.Error()
	}
	return resp, nil
}

func (s *DeliveryServer) NotifyArrived(ctx context.Context, req *DroneRequest) (*DeliveryResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Correlator.NotifyArrived(ctx, a, req.DroneID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DeliveryResponse{Delivery: d}, nil
}

func (s *DeliveryServer) ConfirmDelivery(ctx context.Context, req *OrderRequest) (*DeliveryResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Correlator.ConfirmDelivery(ctx, a, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DeliveryResponse{Delivery: d}, nil
}

func (s *DeliveryServer) NotifyReturned(ctx context.Context, req *DroneRequest) (*DroneResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Correlator.NotifyReturned(ctx, a, req.DroneID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DroneResponse{Drone: d}, nil
}

// ReportTelemetry accepts a position sample from an external drone feed.
func (s *DeliveryServer) ReportTelemetry(ctx context.Context, req *TelemetryRequest) (*Empty, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Correlator.IngestTelemetry(ctx, a, req.Sample); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *DeliveryServer) GetDelivery(ctx context.Context, req *OrderRequest) (*DeliveryLogResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.Correlator.GetDelivery(ctx, a, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DeliveryLogResponse{Delivery: l.Delivery, Route: l.Route}, nil
}

// Subscribe streams telemetry for one drone or one order until the client goes
// away or the topic is closed.
func (s *DeliveryServer) Subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	a, err := s.actor(ctx)
	if err != nil {
		return err
	}
	var topic telemetry.Topic
	switch {
	case req.DroneID > 0 && req.OrderID == 0:
		err = s.Correlator.CanWatchDrone(ctx, a, req.DroneID)
		topic = telemetry.DroneTopic(req.DroneID)
	case req.OrderID > 0 && req.DroneID == 0:
		err = s.Correlator.CanWatchOrder(ctx, a, req.OrderID)
		topic = telemetry.OrderTopic(req.OrderID)
	default:
		return status.Error(codes.InvalidArgument, "exactly one of drone_id or order_id is required")
	}
	if err != nil {
		return toStatus(err)
	}

	sub := s.Broadcaster.Subscribe(topic)
	defer s.Broadcaster.Unsubscribe(sub)
	s.Log.WithFields(logrus.Fields{"topic": topic, "subscriber": a.Subject}).Debug("stream subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&msg); err != nil {
				return err
			}
		}
	}
}
