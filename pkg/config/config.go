package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Application
	AppName string
	Debug   bool
	Port    string

	// Logging
	LogLevel string
	LogJSON  bool

	// Key-value store backing the capped streams ("memory", "redis", "database")
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Database
	DatabaseType string
	DatabaseURL  string
	DatabasePath string

	// Authentication service
	AuthServiceURL string
	JWTSecret      string
	// ServiceToken authenticates the auth flow calling the login and session
	// endpoints; empty disables those endpoints
	ServiceToken string

	// InfluxDB (time-series storage for performance metrics and events)
	InfluxDBURL    string
	InfluxDBToken  string
	InfluxDBOrg    string
	InfluxDBBucket string

	// Escalation of critical alerts
	EscalationWebhookURL string

	// Security monitor
	MaxLoginAttempts      int
	LockoutWindow         time.Duration
	MaxSessionAge         time.Duration
	SessionRenewThreshold time.Duration
	DetectionPatternsFile string

	// Retry executor
	RetryBaseDelay time.Duration

	// Scheduler intervals
	HealthCheckInterval      time.Duration
	PerformanceSweepInterval time.Duration
	ErrorSweepInterval       time.Duration
	ResourceSweepInterval    time.Duration
	CleanupInterval          time.Duration
}

// PatternConfig describes one suspicious-activity pattern loaded from YAML
type PatternConfig struct {
	Name      string        `yaml:"name"`
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
	Actions   []string      `yaml:"actions"`
}

type patternFile struct {
	Patterns []PatternConfig `yaml:"patterns"`
}

// Load loads configuration from environment
func Load() *Config {
	// Load .env file if exists
	_ = godotenv.Load()

	return &Config{
		AppName:  getEnv("APP_NAME", "DepositDigest"),
		Debug:    getEnvBool("DEBUG", false),
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		StoreBackend:  getEnv("STORE_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DatabaseType: getEnv("DATABASE_TYPE", "sqlite"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DatabasePath: getEnv("DATABASE_PATH", "./depositdigest.db"),

		AuthServiceURL: getEnv("AUTH_SERVICE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production-please-use-a-random-string"),
		ServiceToken:   getEnv("SERVICE_TOKEN", ""),

		InfluxDBURL:    getEnv("INFLUXDB_URL", ""),
		InfluxDBToken:  getEnv("INFLUXDB_TOKEN", ""),
		InfluxDBOrg:    getEnv("INFLUXDB_ORG", "depositdigest"),
		InfluxDBBucket: getEnv("INFLUXDB_BUCKET", "monitoring"),

		EscalationWebhookURL: getEnv("ESCALATION_WEBHOOK_URL", ""),

		MaxLoginAttempts:      getEnvInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutWindow:         getEnvDuration("LOCKOUT_WINDOW", 15*time.Minute),
		MaxSessionAge:         getEnvDuration("MAX_SESSION_AGE", 24*time.Hour),
		SessionRenewThreshold: getEnvDuration("SESSION_RENEW_THRESHOLD", 2*time.Hour),
		DetectionPatternsFile: getEnv("DETECTION_PATTERNS_FILE", ""),

		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", time.Second),

		HealthCheckInterval:      getEnvDuration("HEALTH_CHECK_INTERVAL", 5*time.Minute),
		PerformanceSweepInterval: getEnvDuration("PERFORMANCE_SWEEP_INTERVAL", time.Minute),
		ErrorSweepInterval:       getEnvDuration("ERROR_SWEEP_INTERVAL", 2*time.Minute),
		ResourceSweepInterval:    getEnvDuration("RESOURCE_SWEEP_INTERVAL", 5*time.Minute),
		CleanupInterval:          getEnvDuration("CLEANUP_INTERVAL", time.Hour),
	}
}

// LoadPatterns reads detection patterns from a YAML file of the form
//
//	patterns:
//	  - name: rapid_requests
//	    threshold: 10
//	    window: 60s
func LoadPatterns(path string) ([]PatternConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse patterns file: %w", err)
	}

	for i, p := range file.Patterns {
		if p.Name == "" {
			return nil, fmt.Errorf("pattern %d: name is required", i)
		}
		if p.Threshold <= 0 || p.Window <= 0 {
			return nil, fmt.Errorf("pattern %q: threshold and window must be positive", p.Name)
		}
	}

	return file.Patterns, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Invalid boolean for %s, using default: %v", key, defaultValue)
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Invalid integer for %s, using default: %d", key, defaultValue)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			log.Printf("Invalid duration for %s, using default: %s", key, defaultValue)
			return defaultValue
		}
		return d
	}
	return defaultValue
}
