package grpcserver

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"droneDeliveryCoordinator/internal/auth"
	"droneDeliveryCoordinator/internal/config"
	"droneDeliveryCoordinator/internal/dispatch"
	"droneDeliveryCoordinator/internal/fleet"
	"droneDeliveryCoordinator/internal/registration"
	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/repository"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// Deps are the domain services exposed over gRPC.
type Deps struct {
	Users       *repository.UserRepository
	Registry    *fleet.Registry
	Workflow    *registration.Workflow
	Correlator  *dispatch.Correlator
	Broadcaster *telemetry.Broadcaster
	Log         *logrus.Entry
}

// NewServer builds a gRPC server with authentication, both coordinator services
// and the standard health service registered.
func NewServer(secret string, deps Deps) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.NewUnaryAuthInterceptor(secret, healthCheckMethod, healthWatchMethod)),
		grpc.StreamInterceptor(auth.NewStreamAuthInterceptor(secret, healthCheckMethod, healthWatchMethod)),
	)

	srv.RegisterService(&fleetServiceDesc, &FleetServer{
		Users:    deps.Users,
		Registry: deps.Registry,
		Workflow: deps.Workflow,
	})
	srv.RegisterService(&deliveryServiceDesc, &DeliveryServer{
		Users:       deps.Users,
		Correlator:  deps.Correlator,
		Broadcaster: deps.Broadcaster,
		Log:         deps.Log,
	})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(FleetServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(DeliveryServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

// StartGRPC starts the gRPC server on the configured address and returns a shutdown function.
func StartGRPC(cfg *config.Config, deps Deps) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	addr := cfg.GRPC.Address
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := NewServer(cfg.Auth.JWTSecret, deps)
	go func() {
		if err := srv.Serve(lis); err != nil {
			deps.Log.WithError(err).Error("grpc serve stopped")
		}
	}()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
