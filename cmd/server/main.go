package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/config"
	"droneDeliveryCoordinator/internal/db"
	"droneDeliveryCoordinator/internal/dispatch"
	"droneDeliveryCoordinator/internal/fleet"
	grpcserver "droneDeliveryCoordinator/internal/grpc"
	"droneDeliveryCoordinator/internal/httpapi"
	"droneDeliveryCoordinator/internal/jobs"
	"droneDeliveryCoordinator/internal/logging"
	"droneDeliveryCoordinator/internal/orderclient"
	"droneDeliveryCoordinator/internal/registration"
	"droneDeliveryCoordinator/internal/simulator"
	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/repository"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	log := logging.Component(logger, "main")
	log.Infof("Configuration loaded: %v", cfg)

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Errorf("close db: %v", err)
		}
	}()
	if v, err := db.Version(d); err == nil {
		log.Infof("schema version %d", v)
	}
	store := repository.NewStore(d)

	registry := fleet.NewRegistry(store, logging.Component(logger, "fleet"))
	workflow := registration.New(store, registry, store.Restaurants, logging.Component(logger, "registration"))

	var orders dispatch.OrderService = store.Orders
	if cfg.Orders.ServiceURL != "" {
		orders = orderclient.New(cfg.Orders.ServiceURL, logging.Component(logger, "orderclient"),
			orderclient.WithToken(cfg.Orders.ServiceToken))
		log.Infof("order service: %s", cfg.Orders.ServiceURL)
	}

	opts := []telemetry.Option{telemetry.WithBuffer(cfg.Telemetry.SubscriberBuffer)}
	var latest httpapi.LatestStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = rdb.Close() }()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, telemetry stays in-process")
		} else {
			sink := telemetry.NewRedisSink(rdb, cfg.Redis.TelemetryTTL)
			opts = append(opts, telemetry.WithSink(sink))
			latest = sink
			log.Infof("telemetry mirrored to redis at %s", cfg.Redis.Addr)
		}
		cancel()
	}
	broadcaster := telemetry.NewBroadcaster(logging.Component(logger, "telemetry"), opts...)
	defer broadcaster.Close()

	var source simulator.Source
	external := cfg.Simulator.Mode == config.SimModeExternal
	if !external {
		source = simulator.New(simulator.Config{
			TickInterval:         cfg.Simulator.TickInterval,
			StepFraction:         cfg.Simulator.StepFraction,
			ArrivalThresholdKm:   cfg.Simulator.ArrivalThresholdKm,
			OutboundDrainPerTick: cfg.Simulator.OutboundDrainPerTick,
			ReturnDrainPerTick:   cfg.Simulator.ReturnDrainPerTick,
			CruiseSpeedKmh:       cfg.Simulator.CruiseSpeedKmh,
		}, logging.Component(logger, "simulator"))
	}
	correlator := dispatch.New(store, registry, orders, broadcaster, source, dispatch.Config{
		MinBatteryPercent:    cfg.Dispatch.MinBatteryPercent,
		MaxRangeKm:           cfg.Dispatch.MaxRangeKm,
		ExternalTelemetry:    external,
		RechargeOnReturn:     cfg.Dispatch.RechargeOnReturn,
		ArrivalTimeout:       cfg.Dispatch.ArrivalTimeout,
		ArrivalTimeoutAction: dispatch.TimeoutAction(cfg.Dispatch.ArrivalTimeoutAction),
	}, logging.Component(logger, "dispatch"))
	defer correlator.Close()

	if n, err := correlator.Recover(context.Background()); err != nil {
		log.WithError(err).Error("recover open deliveries")
	} else if n > 0 {
		log.Infof("resumed %d open deliveries", n)
	}

	jm := jobs.NewJobManager(correlator, correlator, jobs.Schedules{
		ArrivalSweep:   cfg.Dispatch.SweepSchedule,
		OrderReconcile: cfg.Dispatch.ReconcileSchedule,
	}, logging.Component(logger, "jobs"))
	if err := jm.StartAll(); err != nil {
		log.Fatalf("start jobs: %v", err)
	}
	defer jm.StopAll()

	// Start gRPC
	shutdownGRPC, err := grpcserver.StartGRPC(cfg, grpcserver.Deps{
		Users:       store.Users,
		Registry:    registry,
		Workflow:    workflow,
		Correlator:  correlator,
		Broadcaster: broadcaster,
		Log:         logging.Component(logger, "grpc"),
	})
	if err != nil {
		log.Fatalf("start grpc: %v", err)
	}
	log.Infof("gRPC server listening on %s", cfg.GRPC.Address)

	shutdownHTTP, err := httpapi.Start(cfg, httpapi.Deps{
		Users:       store.Users,
		Correlator:  correlator,
		Broadcaster: broadcaster,
		Latest:      latest,
		Log:         logging.Component(logger, "http"),
	})
	if err != nil {
		log.Fatalf("start http: %v", err)
	}
	log.Infof("HTTP gateway listening on %s", cfg.HTTP.Address)

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownHTTP(ctx); err != nil {
		log.Errorf("http shutdown error: %v", err)
	}
	if err := shutdownGRPC(ctx); err != nil {
		log.Errorf("grpc shutdown error: %v", err)
	}
}
