/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the investment platform server. Handles
  configuration, dependency injection, admin bootstrap, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load .env (development convenience) and environment config
  2. Initialize SQLite store
  3. Seed the admin account if configured and absent
  4. Create API handler and accrual engine
  5. Start the background accrual scheduler
  6. Start server with graceful shutdown

ENVIRONMENT:
  PORT               HTTP server port (default: 8080)
  DB_PATH            SQLite database path (default: invest.db,
                     ":memory:" for in-memory)
  JWT_SECRET         Token signing secret
  ACCRUAL_INTERVAL   Gate between accrual cycles (default: 10m)
  SCHEDULER_ENABLED  Background accrual on/off (default: true)
  ADMIN_EMAIL        Seeded admin account email
  ADMIN_PASSWORD     Seeded admin account password

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, waiting for an in-flight pass
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background accrual
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/vantage/invest-engine/api"
	"github.com/vantage/invest-engine/auth"
	"github.com/vantage/invest-engine/config"
	"github.com/vantage/invest-engine/invest"
	"github.com/vantage/invest-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	cfg.Validate()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if err := seedAdmin(context.Background(), store, cfg); err != nil {
		log.Fatalf("Failed to seed admin account: %v", err)
	}

	tokens := auth.NewTokens(cfg.JWTSecret)
	engine := invest.NewAccrualEngine(store, cfg.AccrualInterval)
	handler := api.NewHandler(store, tokens, engine)
	router := api.NewRouter(handler)

	scheduler := api.NewAccrualScheduler(engine)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.Port)
		log.Printf("API available at http://localhost:%s/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seedAdmin creates the admin account when ADMIN_EMAIL and ADMIN_PASSWORD
// are both set and the email is free. An existing account is left alone.
func seedAdmin(ctx context.Context, store *sqlite.Store, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	if _, err := store.UserByEmail(ctx, cfg.AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, invest.ErrUserNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	code, err := auth.NewReferralCode()
	if err != nil {
		return err
	}

	admin := invest.User{
		ID:           invest.UserID(uuid.NewString()),
		FullName:     "Platform Admin",
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		ReferralCode: code,

		WalletBalance:       decimal.Zero,
		WithdrawableBalance: decimal.Zero,
		TotalInvested:       decimal.Zero,
		ReferralEarnings:    decimal.Zero,

		IsAdmin:   true,
		CreatedAt: time.Now().UTC(),
	}

	if err := store.CreateUser(ctx, admin); err != nil {
		return err
	}
	log.Printf("Seeded admin account %s", cfg.AdminEmail)
	return nil
}
