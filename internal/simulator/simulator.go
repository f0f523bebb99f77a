// Package simulator produces telemetry for a drone flying a straight-line leg.
package simulator

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/geo"
	"droneDeliveryCoordinator/models"
)

// Config holds the flight model constants.
type Config struct {
	TickInterval         time.Duration
	StepFraction         float64 // share of the remaining lat/lng vector covered per tick
	ArrivalThresholdKm   float64
	OutboundDrainPerTick float64
	ReturnDrainPerTick   float64
	CruiseSpeedKmh       float64
}

// DefaultConfig returns the stock flight model: 2s ticks, 5% steps, 50 m arrival radius.
func DefaultConfig() Config {
	return Config{
		TickInterval:         2 * time.Second,
		StepFraction:         0.05,
		ArrivalThresholdKm:   0.05,
		OutboundDrainPerTick: 1.0,
		ReturnDrainPerTick:   0.5,
		CruiseSpeedKmh:       45,
	}
}

// Leg is one straight-line flight from Start to Target.
type Leg struct {
	DroneID int64
	OrderID int64
	Kind    models.LegKind
	Start   models.Coordinates
	Target  models.Coordinates
	Battery float64
}

// State is the simulated drone between ticks.
type State struct {
	Position models.Coordinates
	Battery  float64
	Done     bool
}

// Initial returns the state a leg starts from.
func (l Leg) Initial() State {
	return State{Position: l.Start, Battery: clampBattery(l.Battery)}
}

// Source produces telemetry samples for a leg until it reaches its target or ctx ends.
// emit is called once per sample, in order; the last sample of a completed leg is Terminal.
type Source interface {
	Run(ctx context.Context, leg Leg, emit func(models.TelemetrySample) error) error
}

// Step advances the leg by one tick. Once the drone is inside the arrival threshold
// it snaps to the target, reports zero speed and marks the state done; a done state
// is returned unchanged with another terminal sample.
func Step(cfg Config, leg Leg, st State, now time.Time) (State, models.TelemetrySample) {
	sample := models.TelemetrySample{
		DroneID:   leg.DroneID,
		OrderID:   leg.OrderID,
		Leg:       leg.Kind,
		Timestamp: now,
	}
	if st.Done || geo.Distance(st.Position, leg.Target) < cfg.ArrivalThresholdKm {
		st.Position = leg.Target
		st.Done = true
		sample.Lat, sample.Lng = leg.Target.Lat, leg.Target.Lng
		sample.BatteryPercent = st.Battery
		sample.Terminal = true
		return st, sample
	}

	st.Position = geo.StepToward(st.Position, leg.Target, cfg.StepFraction)
	drain := cfg.OutboundDrainPerTick
	if leg.Kind == models.LegReturn {
		drain = cfg.ReturnDrainPerTick
	}
	st.Battery = clampBattery(st.Battery - drain)

	sample.Lat, sample.Lng = st.Position.Lat, st.Position.Lng
	sample.BatteryPercent = st.Battery
	sample.SpeedKmh = cfg.CruiseSpeedKmh
	sample.RemainingKm = geo.Distance(st.Position, leg.Target)
	return st, sample
}

func clampBattery(v float64) float64 {
	return math.Max(0, math.Min(models.FullBattery, v))
}

// EstimateDurationMinutes is the whole-minute flight time at the drone's max speed.
func EstimateDurationMinutes(distanceKm, maxSpeedKmh float64) int {
	if maxSpeedKmh <= 0 || distanceKm <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / maxSpeedKmh * 60))
}

// Simulator is the in-process Source driven by a ticker.
type Simulator struct {
	cfg Config
	log *logrus.Entry
	now func() time.Time
}

// New returns a Simulator. A zero tick interval takes the default.
func New(cfg Config, log *logrus.Entry) *Simulator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Simulator{cfg: cfg, log: log, now: time.Now}
}

// Config returns the flight model in use.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Run ticks the leg until the terminal sample is emitted. Emit failures are logged and
// the leg keeps flying. Cancelling ctx stops the leg where it is; a new Leg starting
// from the last position resumes it.
func (s *Simulator) Run(ctx context.Context, leg Leg, emit func(models.TelemetrySample) error) error {
	log := s.log.WithFields(logrus.Fields{"drone_id": leg.DroneID, "order_id": leg.OrderID, "leg": leg.Kind})
	log.WithField("target", leg.Target).Debug("leg started")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	st := leg.Initial()
	for {
		select {
		case <-ctx.Done():
			log.Debug("leg stopped")
			return ctx.Err()
		case <-ticker.C:
		}
		var sample models.TelemetrySample
		st, sample = Step(s.cfg, leg, st, s.now())
		if err := emit(sample); err != nil {
			log.WithError(err).Warn("telemetry emit failed")
		}
		if st.Done {
			log.Debug("leg reached target")
			return nil
		}
	}
}
