package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	AppEnv      string
	LogLevel    string
	HTTPPort    int

	// LedgerDriver selects the store: "mysql" or "memory".
	LedgerDriver  string
	DatabaseDSN   string
	RunMigrations bool

	JWTSecret  string
	CORSOrigin string

	StripeSecretKey      string
	Currency             string
	GatewayTimeout       time.Duration
	HeuristicMatchWindow time.Duration
	ReconcileInterval    time.Duration
}

// Load reads the optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("could not load .env file, relying on system environment variables")
	}

	return Config{
		ServiceName: getEnv("SERVICE_NAME", "taptosell-orders"),
		AppEnv:      getEnv("APP_ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPPort:    getEnvInt("HTTP_PORT", 8080),

		LedgerDriver:  strings.ToLower(getEnv("LEDGER_DRIVER", "mysql")),
		DatabaseDSN:   getEnv("DB_DSN_PRIMARY", "root:root@tcp(127.0.0.1:3306)/taptosell_orders"),
		RunMigrations: getEnvBool("RUN_MIGRATIONS", true),

		JWTSecret:  getEnv("JWT_SECRET", "A_VERY_SECURE_SECRET_KEY_REPLACE_LATER"),
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:5173"),

		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		Currency:             strings.ToLower(getEnv("CURRENCY", "usd")),
		GatewayTimeout:       getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		HeuristicMatchWindow: getEnvDuration("HEURISTIC_MATCH_WINDOW", 30*time.Minute),
		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 10*time.Minute),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
