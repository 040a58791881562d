package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"coach-backend/internal/audiochat"
	"coach-backend/internal/chat"
	"coach-backend/internal/completion"
	"coach-backend/internal/extract"
	"coach-backend/internal/llm"
	"coach-backend/internal/llm/openai"
	"coach-backend/internal/services/health"
	"coach-backend/internal/shared/auth"
	"coach-backend/internal/shared/config"
	"coach-backend/internal/shared/server"
	"coach-backend/internal/shared/storage/db"
	"coach-backend/internal/shared/storage/object"
	localstore "coach-backend/internal/shared/storage/object/local"
	s3store "coach-backend/internal/shared/storage/object/s3"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/speech"
	"coach-backend/internal/usage"
	"coach-backend/internal/usagelog"
)

// providerClient covers every upstream AI call the service makes.
type providerClient interface {
	llm.ChatProvider
	llm.Transcriber
	llm.Synthesizer
}

// App holds shared dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Store    object.ObjectStore
	Provider providerClient
	Rates    *completion.RateTable

	UsageService *usage.Service
	UsageLog     *usagelog.Async
	Extractor    *extract.Extractor
	Orchestrator *completion.Orchestrator
	Speech       *speech.Bridge
	ChatService  *chat.Service
	AudioChat    *audiochat.Coordinator
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	rates := completion.NewRateTable(nil)
	if strings.TrimSpace(cfg.RateTableFile) != "" {
		if rates, err = completion.LoadRateTable(cfg.RateTableFile); err != nil {
			return nil, fmt.Errorf("load rate table: %w", err)
		}
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.Env)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Store:    store,
		Provider: provider,
		Rates:    rates,
	}
	buildServices(app)

	deps := server.Deps{
		Signer:    signer,
		Health:    health.NewService(nil),
		Chat:      chat.NewHandler(app.ChatService, store),
		Speech:    speech.NewHandler(app.Speech),
		AudioChat: audiochat.NewHandler(app.AudioChat),
		Usage:     usage.NewHandler(app.UsageService),
	}
	if sqlDB != nil {
		deps.Health = health.NewService(sqlDB)
	}
	if ls, ok := store.(*localstore.Store); ok {
		deps.StaticDir = ls.BaseDir()
	}
	app.Router = server.NewRouter(cfg, deps)

	return app, nil
}

// Close releases pooled resources.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_connect_failed", map[string]any{"fallback": "memory", "error": err})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir, cfg.PublicBaseURL), nil
	}
}

func buildProvider(cfg config.Config) (providerClient, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		if config.IsDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.openai_missing", map[string]any{"fallback": "placeholder"})
			return llm.PlaceholderClient{}, nil
		}
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
}

func buildServices(app *App) {
	cfg := app.Config
	free := usage.Limits{Normal: cfg.FreeNormalLimit, Interview: cfg.FreeInterviewLimit}

	var usageLogger usagelog.Logger = usagelog.TelemetryLogger{}
	if app.DB != nil {
		app.UsageService = usage.NewPostgresService(usage.NewPGStore(app.DB, free))
		usageLogger = &usagelog.PGLogger{DB: app.DB}
	} else {
		app.UsageService = usage.NewService(free)
	}
	app.UsageLog = usagelog.NewAsync(usageLogger)

	app.Extractor = extract.New(app.Store)

	orch := completion.NewOrchestrator(app.Provider, app.Rates, app.UsageLog, cfg.ChatModel)
	orch.MaxTokens = cfg.MaxTokens
	orch.Timeout = cfg.ChatTimeout
	app.Orchestrator = orch

	bridge := speech.NewBridge(app.Provider, app.Provider, app.Store, app.UsageLog)
	bridge.STTModel = cfg.WhisperModel
	bridge.TTSModel = cfg.TTSModel
	bridge.TranscribeTimeout = cfg.TranscribeTimeout
	bridge.SynthesizeTimeout = cfg.SynthesizeTimeout
	if speech.ValidVoice(cfg.TTSVoice) {
		bridge.Voice = cfg.TTSVoice
	} else {
		telemetry.Warn("bootstrap.invalid_tts_voice", map[string]any{"voice": cfg.TTSVoice, "fallback": speech.DefaultVoice})
	}
	app.Speech = bridge

	chatSvc := chat.NewService(app.Extractor, orch, bridge, app.UsageService)
	chatSvc.Temperature = cfg.Temperature
	chatSvc.InterviewTemperature = cfg.InterviewTemperature
	app.ChatService = chatSvc

	app.AudioChat = audiochat.NewCoordinator(bridge, chatSvc, bridge)
}
