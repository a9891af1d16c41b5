// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the tunables of the
// verification/ticketing/notification core: priority thresholds, device token
// retention, push gateway settings, retry bounds, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ordwell/go-fulfillment-backend/internal/sysutil"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// PushConfig defines push gateway (FCM) settings. When CredentialsFile is
// empty or Enabled is false, the dispatcher runs in simulate mode and never
// calls the gateway.
type PushConfig struct {
	Enabled         bool          // PUSH_ENABLED (kill switch)
	CredentialsFile string        // PUSH_CREDENTIALS_FILE (service account JSON)
	BatchSize       int           // PUSH_BATCH_SIZE, max endpoints per gateway call
	Timeout         time.Duration // PUSH_TIMEOUT, per gateway batch call
	RatePerSecond   float64       // PUSH_RATE_PER_SECOND, gateway call budget
	RateBurst       int           // PUSH_RATE_BURST
}

// Config holds all configuration values for the subsystem.
type Config struct {
	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Persistence
	DBPath string // SQLite path

	// Ticket engine
	PriorityHighQty     int           // critical qty above which priority is HIGH
	PriorityUrgentQty   int           // critical qty above which priority is URGENT
	TicketIDMaxAttempts int           // bounded retries for ticket number collisions
	VerifyTimeout       time.Duration // upper bound on the atomic verification write
	NotifyRoles         []string      // roles notified about new tickets

	// Device registry
	DeviceRetentionCap int           // tokens kept per (user, category)
	DeviceGracePeriod  time.Duration // inactive tokens older than this are purged
	DeviceTokenTTL     time.Duration // expiry horizon stamped on registration

	// Notification lifecycle
	TTLUrgent time.Duration // expiry for URGENT notifications
	TTLNormal time.Duration // expiry for MEDIUM/HIGH/NORMAL notifications
	TTLLow    time.Duration // expiry for LOW notifications

	// Retry sweeper
	RetryBatchLimit int // records examined per sweep
	MaxRetries      int // retry bound per notification

	Push PushConfig
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables (after an optional
// .env file), applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DBPath: getenv("DB_PATH", "fulfillment.db"),

		PriorityHighQty:     getint("PRIORITY_HIGH_QTY", 50),
		PriorityUrgentQty:   getint("PRIORITY_URGENT_QTY", 100),
		TicketIDMaxAttempts: getint("TICKET_ID_MAX_ATTEMPTS", 5),
		VerifyTimeout:       getdur("VERIFY_TIMEOUT", 30*time.Second),
		NotifyRoles:         sysutil.SplitCSV(getenv("NOTIFY_ROLES", "ADMIN,OPERATIONS")),

		DeviceRetentionCap: getint("DEVICE_RETENTION_CAP", 5),
		DeviceGracePeriod:  getdur("DEVICE_GRACE_PERIOD", 7*24*time.Hour),
		DeviceTokenTTL:     getdur("DEVICE_TOKEN_TTL", 60*24*time.Hour),

		TTLUrgent: getdur("NOTIFICATION_TTL_URGENT", time.Hour),
		TTLNormal: getdur("NOTIFICATION_TTL_NORMAL", 24*time.Hour),
		TTLLow:    getdur("NOTIFICATION_TTL_LOW", 7*24*time.Hour),

		RetryBatchLimit: getint("RETRY_BATCH_LIMIT", 100),
		MaxRetries:      getint("MAX_RETRIES", 3),

		Push: PushConfig{
			Enabled:         getbool("PUSH_ENABLED", true),
			CredentialsFile: getenv("PUSH_CREDENTIALS_FILE", ""),
			BatchSize:       getint("PUSH_BATCH_SIZE", 500),
			Timeout:         getdur("PUSH_TIMEOUT", 10*time.Second),
			RatePerSecond:   getfloat("PUSH_RATE_PER_SECOND", 10),
			RateBurst:       getint("PUSH_RATE_BURST", 20),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "fulfillment-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("config: LOG_LEVEL must be one of debug|info|warn|error|fatal|panic")
	}
	if c.DBPath == "" {
		return errors.New("config: DB_PATH must not be empty")
	}
	if c.PriorityHighQty <= 0 || c.PriorityUrgentQty <= 0 {
		return errors.New("config: priority thresholds must be positive")
	}
	if c.PriorityUrgentQty <= c.PriorityHighQty {
		return errors.New("config: PRIORITY_URGENT_QTY must exceed PRIORITY_HIGH_QTY")
	}
	if c.TicketIDMaxAttempts < 1 {
		return errors.New("config: TICKET_ID_MAX_ATTEMPTS must be at least 1")
	}
	if c.VerifyTimeout <= 0 {
		return errors.New("config: VERIFY_TIMEOUT must be positive")
	}
	if len(c.NotifyRoles) == 0 {
		return errors.New("config: NOTIFY_ROLES must name at least one role")
	}
	if c.DeviceRetentionCap < 1 {
		return errors.New("config: DEVICE_RETENTION_CAP must be at least 1")
	}
	if c.DeviceGracePeriod <= 0 || c.DeviceTokenTTL <= 0 {
		return errors.New("config: device durations must be positive")
	}
	if c.TTLUrgent <= 0 || c.TTLNormal <= 0 || c.TTLLow <= 0 {
		return errors.New("config: notification TTLs must be positive")
	}
	if c.RetryBatchLimit < 1 || c.MaxRetries < 0 {
		return errors.New("config: retry bounds out of range")
	}
	if c.Push.BatchSize < 1 || c.Push.BatchSize > 500 {
		// FCM rejects multicast batches above 500 tokens.
		return errors.New("config: PUSH_BATCH_SIZE must be in [1,500]")
	}
	if c.Push.Timeout <= 0 {
		return errors.New("config: PUSH_TIMEOUT must be positive")
	}
	if c.Push.RatePerSecond <= 0 || c.Push.RateBurst < 1 {
		return errors.New("config: push rate limit out of range")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("config: OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// --- env helpers ---

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getbool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return sysutil.IsTruthy(v)
	}
	return def
}

func getint(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
