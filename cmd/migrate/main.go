package main

// Run database migrations:
//   go run ./cmd/migrate [up|down|status|version|redo]

import (
	"context"
	"os"

	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/storage/db"
	"coach-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Configure(os.Stdout, cfg.LogLevel)
	ctx := context.Background()

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrationCommand(ctx, sqlDB, command, args...); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"command": command, "error": err})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"command": command})
}
