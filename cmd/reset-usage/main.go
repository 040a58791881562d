package main

// Reset chat usage counters:
//   go run ./cmd/reset-usage -user <id>
//   go run ./cmd/reset-usage -all

import (
	"context"
	"flag"
	"os"

	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/storage/db"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/usage"
)

func main() {
	userID := flag.String("user", "", "reset a single user")
	all := flag.Bool("all", false, "reset every user")
	flag.Parse()

	cfg := config.Load()
	telemetry.Configure(os.Stdout, cfg.LogLevel)

	if (*userID == "") == !*all {
		telemetry.Error("reset_usage.usage", map[string]any{"error": "pass exactly one of -user or -all"})
		os.Exit(2)
	}

	ctx := context.Background()
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		telemetry.Error("reset_usage.connect_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	svc := usage.NewPostgresService(usage.NewPGStore(sqlDB, usage.Limits{
		Normal:    cfg.FreeNormalLimit,
		Interview: cfg.FreeInterviewLimit,
	}))

	if *all {
		n, err := svc.ResetAll(ctx)
		if err != nil {
			telemetry.Error("reset_usage.failed", map[string]any{"error": err})
			os.Exit(1)
		}
		telemetry.Info("reset_usage.done", map[string]any{"rows": n})
		return
	}

	counter, err := svc.Reset(ctx, *userID)
	if err != nil {
		telemetry.Error("reset_usage.failed", map[string]any{"user_id": *userID, "error": err})
		os.Exit(1)
	}
	telemetry.Info("reset_usage.done", map[string]any{"user_id": counter.UserID, "tier": counter.Tier})
}
