// Package config loads application configuration from environment
// variables.  There is no module-level state: Load builds one Config
// value at process start and main passes it (or the handles built from
// it) into each component explicitly.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable; required variables are
// enforced by must() and missing values halt startup.
type Config struct {
	Env  string // application environment ("dev", "production")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret        string // secret used to sign operator tokens
	AccessTTLMin     int    // operator token time-to-live in minutes
	OperatorEmail    string // operator login email
	OperatorPassHash string // bcrypt hash of the operator password

	HoldTTL       time.Duration // lifetime of a browsing hold
	ForceHoldTTL  time.Duration // lifetime of an administrative forced hold
	SweepInterval time.Duration // reaper tick interval

	PaymentBaseURL string // payment provider API base URL
	PaymentToken   string // payment provider access token

	AMQPURL        string // RabbitMQ URL for the notification sink (optional)
	AllowedOrigins string // comma-separated CORS allow-list (optional)
}

// Load reads configuration from the environment.
func Load() Config {
	return Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:        must("JWT_SECRET"),
		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 60),
		OperatorEmail:    must("OPERATOR_EMAIL"),
		OperatorPassHash: must("OPERATOR_PASS_HASH"),

		HoldTTL:       envDur("HOLD_TTL", 10*time.Minute),
		ForceHoldTTL:  envDur("FORCE_HOLD_TTL", 24*time.Hour),
		SweepInterval: envDur("SWEEP_INTERVAL", time.Minute),

		PaymentBaseURL: must("PAYMENT_BASE_URL"),
		PaymentToken:   must("PAYMENT_ACCESS_TOKEN"),

		AMQPURL:        os.Getenv("AMQP_URL"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGIN"),
	}
}

// must retrieves a required environment variable or halts startup.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}
