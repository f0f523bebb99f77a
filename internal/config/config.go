package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig
	GRPC      GRPCConfig
	HTTP      HTTPConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Orders    OrdersConfig
	Simulator SimulatorConfig
	Dispatch  DispatchConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// HTTPConfig contains the REST/WebSocket gateway settings.
type HTTPConfig struct {
	Address string
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string // JWT signing secret
}

// RedisConfig enables the Redis telemetry sink when Addr is set.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	TelemetryTTL time.Duration
}

// OrdersConfig selects the order service. An empty ServiceURL uses the local orders table.
type OrdersConfig struct {
	ServiceURL   string
	ServiceToken string
}

const (
	SimModeInternal = "internal"
	SimModeExternal = "external"
)

// SimulatorConfig holds the flight model.
type SimulatorConfig struct {
	Mode                 string // internal or external
	TickInterval         time.Duration
	StepFraction         float64
	ArrivalThresholdKm   float64
	OutboundDrainPerTick float64
	ReturnDrainPerTick   float64
	CruiseSpeedKmh       float64
}

// DispatchConfig holds the correlator's policies and the schedules of its background jobs.
type DispatchConfig struct {
	MinBatteryPercent    float64
	MaxRangeKm           float64
	RechargeOnReturn     bool
	ArrivalTimeout       time.Duration
	ArrivalTimeoutAction string // escalate or auto_confirm
	SweepSchedule        string // cron spec with seconds
	ReconcileSchedule    string
}

type TelemetryConfig struct {
	SubscriberBuffer int
}

type LogConfig struct {
	Level string
	JSON  bool
}

// Load loads configuration from the environment (and a .env file when present).
// JWT_SECRET is required.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}
	// Validate critical settings
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	var p parser
	cfg := &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "coordinator.db"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		HTTP: HTTPConfig{
			Address: getEnv("HTTP_ADDRESS", ":8080"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", defaultSecret),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           p.int("REDIS_DB", 0),
			TelemetryTTL: p.duration("REDIS_TELEMETRY_TTL", 5*time.Minute),
		},
		Orders: OrdersConfig{
			ServiceURL:   getEnv("ORDER_SERVICE_URL", ""),
			ServiceToken: getEnv("ORDER_SERVICE_TOKEN", ""),
		},
		Simulator: SimulatorConfig{
			Mode:                 strings.ToLower(getEnv("SIM_MODE", SimModeInternal)),
			TickInterval:         p.duration("SIM_TICK_INTERVAL", 2*time.Second),
			StepFraction:         p.float("SIM_STEP_FRACTION", 0.05),
			ArrivalThresholdKm:   p.float("SIM_ARRIVAL_THRESHOLD_KM", 0.05),
			OutboundDrainPerTick: p.float("SIM_OUTBOUND_DRAIN", 1.0),
			ReturnDrainPerTick:   p.float("SIM_RETURN_DRAIN", 0.5),
			CruiseSpeedKmh:       p.float("SIM_CRUISE_SPEED_KMH", 45),
		},
		Dispatch: DispatchConfig{
			MinBatteryPercent:    p.float("DISPATCH_MIN_BATTERY", 20),
			MaxRangeKm:           p.float("DISPATCH_MAX_RANGE_KM", 20),
			RechargeOnReturn:     p.bool("DISPATCH_RECHARGE_ON_RETURN", false),
			ArrivalTimeout:       p.duration("DISPATCH_ARRIVAL_TIMEOUT", 0),
			ArrivalTimeoutAction: strings.ToLower(getEnv("DISPATCH_ARRIVAL_TIMEOUT_ACTION", "escalate")),
			SweepSchedule:        getEnv("DISPATCH_SWEEP_SCHEDULE", "*/30 * * * * *"),
			ReconcileSchedule:    getEnv("DISPATCH_RECONCILE_SCHEDULE", "*/15 * * * * *"),
		},
		Telemetry: TelemetryConfig{
			SubscriberBuffer: p.int("TELEMETRY_SUBSCRIBER_BUFFER", 64),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  p.bool("LOG_JSON", false),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Simulator.Mode != SimModeInternal && c.Simulator.Mode != SimModeExternal {
		errs = append(errs, fmt.Errorf("SIM_MODE must be %q or %q, got %q", SimModeInternal, SimModeExternal, c.Simulator.Mode))
	}
	if c.Simulator.TickInterval <= 0 {
		errs = append(errs, errors.New("SIM_TICK_INTERVAL must be positive"))
	}
	if c.Simulator.StepFraction <= 0 || c.Simulator.StepFraction > 1 {
		errs = append(errs, errors.New("SIM_STEP_FRACTION must be in (0, 1]"))
	}
	if c.Simulator.ArrivalThresholdKm <= 0 {
		errs = append(errs, errors.New("SIM_ARRIVAL_THRESHOLD_KM must be positive"))
	}
	if c.Dispatch.MinBatteryPercent < 0 || c.Dispatch.MinBatteryPercent > 100 {
		errs = append(errs, errors.New("DISPATCH_MIN_BATTERY must be within 0..100"))
	}
	if c.Dispatch.MaxRangeKm < 0 {
		errs = append(errs, errors.New("DISPATCH_MAX_RANGE_KM must not be negative"))
	}
	switch c.Dispatch.ArrivalTimeoutAction {
	case "escalate", "auto_confirm":
	default:
		errs = append(errs, fmt.Errorf("DISPATCH_ARRIVAL_TIMEOUT_ACTION must be escalate or auto_confirm, got %q", c.Dispatch.ArrivalTimeoutAction))
	}
	if c.Telemetry.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("TELEMETRY_SUBSCRIBER_BUFFER must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

// getEnvDuration accepts Go durations ("1500ms", "2m").
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v, err := getEnvInt(key, def)
	p.add(err)
	return v
}

func (p *parser) float(key string, def float64) float64 {
	v, err := getEnvFloat(key, def)
	p.add(err)
	return v
}

func (p *parser) bool(key string, def bool) bool {
	v, err := getEnvBool(key, def)
	p.add(err)
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, err := getEnvDuration(key, def)
	p.add(err)
	return v
}

func (p *parser) add(err error) {
	if err != nil {
		p.errs = append(p.errs, err)
	}
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	orders := "local"
	if c.Orders.ServiceURL != "" {
		orders = c.Orders.ServiceURL
	}
	redis := "disabled"
	if c.Redis.Addr != "" {
		redis = c.Redis.Addr
	}
	return fmt.Sprintf("Config{DB: %s, gRPC: %s, HTTP: %s, Orders: %s, Redis: %s, Sim: %s/%s, Auth: *** (masked) ***}",
		c.Database.Path, c.GRPC.Address, c.HTTP.Address, orders, redis, c.Simulator.Mode, c.Simulator.TickInterval)
}
