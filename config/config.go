/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. Defaults below
  2. A .env file in the working directory, if present
  3. Process environment

OPTIONAL INTEGRATIONS:
  An empty endpoint disables the integration and the server falls back to
  the in-process implementation:

    REDIS_ADDR      ""  -> in-memory apply lock (single instance only)
    AMQP_URL        ""  -> events are dropped
    MINIO_ENDPOINT  ""  -> schedules are not archived
    SMTP_HOST       ""  -> reminders are logged, not mailed

TICO RULE OVERRIDES:
  TICO_MIN_FINAL_PAYMENT_DAYS, TICO_MAX_INSTALLMENTS, TICO_MIN_PAYMENT_CENTS,
  TICO_DEPOSIT_WARNING_PCT. Unset values keep tico.DefaultRules().
*/
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/tailfire/payment-engine/schedule"
	"github.com/tailfire/payment-engine/tico"
)

type Config struct {
	App       App
	DB        DB
	Redis     Redis
	RabbitMQ  RabbitMQ
	Minio     Minio
	SMTP      SMTP
	Scheduler Scheduler
	Rules     tico.Rules
}

type App struct {
	Port               string
	Env                string
	LogLevel           string
	RateLimitPerMinute int
	AllowedOrigins     []string
}

type DB struct {
	Path string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQ struct {
	URL   string
	Queue string
}

type Minio struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
	// Recipient of reminder digests, usually the agency's accounting inbox.
	Recipient string
}

type Scheduler struct {
	Enabled           bool
	SweepSchedule     string // cron spec
	ReminderDaysAhead int
}

// Load reads .env (if any) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: ignoring .env: %v", err)
	}

	return &Config{
		App: App{
			Port:               getEnvString("APP_PORT", "8080"),
			Env:                getEnvString("APP_ENV", "development"),
			LogLevel:           getEnvString("LOG_LEVEL", "info"),
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			AllowedOrigins:     []string{getEnvString("CORS_ORIGIN", "http://localhost:5173")},
		},
		DB: DB{
			Path: getEnvString("DB_PATH", "./payments.db"),
		},
		Redis: Redis{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQ{
			URL:   getEnvString("AMQP_URL", ""),
			Queue: getEnvString("AMQP_QUEUE", "payment-schedule-events"),
		},
		Minio: Minio{
			Endpoint:  getEnvString("MINIO_ENDPOINT", ""),
			AccessKey: getEnvString("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnvString("MINIO_SECRET_KEY", ""),
			Bucket:    getEnvString("MINIO_BUCKET", "payment-schedules"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		SMTP: SMTP{
			Host:      getEnvString("SMTP_HOST", ""),
			Port:      getEnvInt("SMTP_PORT", 587),
			Username:  getEnvString("SMTP_USERNAME", ""),
			Password:  getEnvString("SMTP_PASSWORD", ""),
			Sender:    getEnvString("SMTP_SENDER", ""),
			Recipient: getEnvString("SMTP_REMINDER_RECIPIENT", ""),
		},
		Scheduler: Scheduler{
			Enabled:           getEnvBool("SCHEDULER_ENABLED", true),
			SweepSchedule:     getEnvString("SWEEP_SCHEDULE", "@daily"),
			ReminderDaysAhead: getEnvInt("REMINDER_DAYS_AHEAD", 7),
		},
		Rules: loadRules(),
	}
}

func loadRules() tico.Rules {
	r := tico.DefaultRules()
	r.MinFinalPaymentDays = getEnvInt("TICO_MIN_FINAL_PAYMENT_DAYS", r.MinFinalPaymentDays)
	r.MaxInstallments = getEnvInt("TICO_MAX_INSTALLMENTS", r.MaxInstallments)
	r.MinPaymentCents = schedule.Cents(getEnvInt("TICO_MIN_PAYMENT_CENTS", int(r.MinPaymentCents)))
	r.DepositWarningPct = getEnvDecimal("TICO_DEPOSIT_WARNING_PCT", r.DepositWarningPct)
	return r
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func getEnvString(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: error parsing %s: %v, using default %d", key, err, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: error parsing %s: %v, using default %t", key, err, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		log.Printf("config: error parsing %s: %v, using default %s", key, err, defaultValue)
		return defaultValue
	}
	return d
}
