package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/askwhyharsh/liveradar/internal/visibility"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	RateLimit  RateLimitConfig
	Session    SessionConfig
	Radar      RadarConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	Host           string
	AllowedOrigins []string // empty allows any origin
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

type PostgresConfig struct {
	DSN string // empty disables the Postgres profile directory
}

type RateLimitConfig struct {
	FixesPerMin          int
	NearbyPerMin         int
	SessionsPerIPPerHour int
	RequestsPerMinute    int
}

type SessionConfig struct {
	TTL time.Duration
}

type RadarConfig struct {
	StoreBackend       string // redis | memory
	StandardRadius     float64
	PremiumRadius      float64
	GlobalRadius       float64
	TierRatios         [5]float64
	ImmediateFloor     float64
	MinMovement        float64
	CadenceHigh        time.Duration
	CadenceBalanced    time.Duration
	CadenceLow         time.Duration
	AcquisitionTimeout time.Duration
	LocationTTL        time.Duration
	ActiveWindow       time.Duration
	QueryTimeout       time.Duration
	MaxNearbyResults   int
	SweepInterval      time.Duration
	ProfileCacheTTL    time.Duration
}

type MonitoringConfig struct {
	EnableMetrics bool
	LogLevel      string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	ratios, err := getEnvAsRatios("TIER_RATIOS", [5]float64{0.1, 0.25, 0.5, 0.75, 1.0})
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			Host:           getEnv("HOST", "0.0.0.0"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 20),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		RateLimit: RateLimitConfig{
			FixesPerMin:          getEnvAsInt("RATE_LIMIT_FIXES_PER_MIN", 120),
			NearbyPerMin:         getEnvAsInt("RATE_LIMIT_NEARBY_PER_MIN", 30),
			SessionsPerIPPerHour: getEnvAsInt("RATE_LIMIT_SESSIONS_PER_IP_PER_HOUR", 10),
			RequestsPerMinute:    getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MIN", 100),
		},
		Session: SessionConfig{
			TTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		Radar: RadarConfig{
			StoreBackend:       getEnv("STORE_BACKEND", "redis"),
			StandardRadius:     getEnvAsFloat("STANDARD_RADIUS_METERS", 5000),
			PremiumRadius:      getEnvAsFloat("PREMIUM_RADIUS_METERS", 25000),
			GlobalRadius:       getEnvAsFloat("GLOBAL_RADIUS_METERS", 20_037_508),
			TierRatios:         ratios,
			ImmediateFloor:     getEnvAsFloat("IMMEDIATE_FLOOR_METERS", 200),
			MinMovement:        getEnvAsFloat("MIN_MOVEMENT_METERS", 5),
			CadenceHigh:        getEnvAsDuration("CADENCE_HIGH", 10*time.Second),
			CadenceBalanced:    getEnvAsDuration("CADENCE_BALANCED", 30*time.Second),
			CadenceLow:         getEnvAsDuration("CADENCE_LOW", 60*time.Second),
			AcquisitionTimeout: getEnvAsDuration("ACQUISITION_TIMEOUT", 30*time.Second),
			LocationTTL:        getEnvAsDuration("LOCATION_TTL", 2*time.Minute),
			ActiveWindow:       getEnvAsDuration("ACTIVE_WINDOW", 5*time.Minute),
			QueryTimeout:       getEnvAsDuration("QUERY_TIMEOUT", 5*time.Second),
			MaxNearbyResults:   getEnvAsInt("MAX_NEARBY_RESULTS", 50),
			SweepInterval:      getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
			ProfileCacheTTL:    getEnvAsDuration("PROFILE_CACHE_TTL", 10*time.Minute),
		},
		Monitoring: MonitoringConfig{
			EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects radar settings that would break the visibility policy.
func (c *Config) Validate() error {
	if err := c.Radar.RadiusConfig().Validate(); err != nil {
		return fmt.Errorf("invalid radar radius config: %w", err)
	}
	if c.Radar.MinMovement < 0 {
		return fmt.Errorf("MIN_MOVEMENT_METERS must not be negative")
	}
	if c.Radar.CadenceHigh <= 0 || c.Radar.CadenceBalanced <= 0 || c.Radar.CadenceLow <= 0 {
		return fmt.Errorf("cadence intervals must be positive")
	}
	if c.Radar.MaxNearbyResults <= 0 {
		return fmt.Errorf("MAX_NEARBY_RESULTS must be positive")
	}
	switch c.Radar.StoreBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Radar.StoreBackend)
	}
	return nil
}

// RadiusConfig converts the radar settings into the visibility policy's form.
func (r RadarConfig) RadiusConfig() visibility.RadiusConfig {
	return visibility.RadiusConfig{
		Standard:       r.StandardRadius,
		Premium:        r.PremiumRadius,
		Global:         r.GlobalRadius,
		TierRatios:     r.TierRatios,
		ImmediateFloor: r.ImmediateFloor,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}

	var values []string
	for _, p := range strings.Split(valueStr, ",") {
		if v := strings.TrimSpace(p); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func getEnvAsRatios(key string, defaultValue [5]float64) ([5]float64, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}

	parts := strings.Split(valueStr, ",")
	if len(parts) != len(defaultValue) {
		return defaultValue, fmt.Errorf("%s needs %d comma separated ratios, got %d", key, len(defaultValue), len(parts))
	}

	var ratios [5]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue, fmt.Errorf("invalid %s entry %q: %w", key, p, err)
		}
		ratios[i] = v
	}
	return ratios, nil
}

func (c *Config) RedisAddr() string {
	return c.Redis.Addr()
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}
