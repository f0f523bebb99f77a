// Command dronefeed drives one drone against a coordinator running with SIM_MODE=external.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"droneDeliveryCoordinator/internal/config"
	"droneDeliveryCoordinator/internal/feeder"
	grpcserver "droneDeliveryCoordinator/internal/grpc"
	"droneDeliveryCoordinator/internal/logging"
	"droneDeliveryCoordinator/internal/simulator"
)

// tokenCreds attaches the drone's bearer token to every call.
type tokenCreds string

func (t tokenCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (tokenCreds) RequireTransportSecurity() bool { return false }

func main() {
	addr := flag.String("addr", "localhost:50051", "coordinator gRPC address")
	droneID := flag.Int64("drone", 0, "drone id to fly")
	token := flag.String("token", os.Getenv("DRONE_TOKEN"), "drone JWT whose name claim is the drone id")
	flag.Parse()

	cfg, err := config.LoadWithDefaults()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	log := logging.Component(logger, "dronefeed")
	if *droneID <= 0 || *token == "" {
		log.Fatal("-drone and -token are required")
	}

	conn, err := grpc.NewClient(*addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(tokenCreds(*token)),
	)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	sim := simulator.New(simulator.Config{
		TickInterval:         cfg.Simulator.TickInterval,
		StepFraction:         cfg.Simulator.StepFraction,
		ArrivalThresholdKm:   cfg.Simulator.ArrivalThresholdKm,
		OutboundDrainPerTick: cfg.Simulator.OutboundDrainPerTick,
		ReturnDrainPerTick:   cfg.Simulator.ReturnDrainPerTick,
		CruiseSpeedKmh:       cfg.Simulator.CruiseSpeedKmh,
	}, logging.Component(logger, "simulator"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("flying drone %d against %s", *droneID, *addr)
	f := feeder.New(grpcserver.NewClient(conn), sim, *droneID, cfg.Simulator.TickInterval, log)
	_ = f.Run(ctx)
}
