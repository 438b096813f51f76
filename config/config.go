/*
Package config loads runtime configuration from the environment.

PURPOSE:
  One place for every tunable: ports, database path, token secret, and
  the accrual interval. Values come from environment variables (a .env
  file is honored in development via godotenv, loaded in main) with
  sensible defaults for local runs.

  ACCRUAL_INTERVAL is the gate between two accrual cycles on the same
  investment. The 10 minute default compresses a "daily" cycle for demo
  and testing; production would set 24h.
*/
package config

import (
	"log"
	"os"
	"time"

	"github.com/vantage/invest-engine/invest"
)

type Config struct {
	Port        string
	DBPath      string
	JWTSecret   string
	Environment string

	AccrualInterval  time.Duration
	SchedulerEnabled bool

	// AdminEmail/AdminPassword seed the admin account on startup when both
	// are set and no user owns the email yet.
	AdminEmail    string
	AdminPassword string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "invest.db"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change-in-production-0000"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		AccrualInterval:  getDuration("ACCRUAL_INTERVAL", invest.DefaultAccrualInterval),
		SchedulerEnabled: getEnv("SCHEDULER_ENABLED", "true") == "true",
		AdminEmail:       os.Getenv("ADMIN_EMAIL"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
	}
}

// Validate warns about configuration that is fine for development but
// dangerous in production.
func (c *Config) Validate() {
	if len(c.JWTSecret) < 32 {
		log.Printf("WARNING: JWT_SECRET should be at least 32 characters, got %d", len(c.JWTSecret))
	}
	if c.Environment == "production" && c.JWTSecret == "dev-secret-change-in-production-0000" {
		log.Printf("WARNING: change JWT_SECRET in production")
	}
	if c.AccrualInterval < time.Minute {
		log.Printf("WARNING: ACCRUAL_INTERVAL %v is very short; cycles will complete almost immediately", c.AccrualInterval)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}
