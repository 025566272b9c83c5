// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/config"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
	aiAdapters "linkedin-autopilot/internal/infra/adapters/ai"
	browserAdapters "linkedin-autopilot/internal/infra/adapters/browser"
	"linkedin-autopilot/internal/infra/adapters/notify"
	httpapi "linkedin-autopilot/internal/infra/api"
	"linkedin-autopilot/internal/infra/api/apiv1"
	pg "linkedin-autopilot/internal/infra/db/postgres"
	"linkedin-autopilot/internal/infra/logging"
	"linkedin-autopilot/internal/infra/metrics"
	red "linkedin-autopilot/internal/infra/redis"
	"linkedin-autopilot/internal/infra/sched"
	"linkedin-autopilot/internal/infra/worker"
	"linkedin-autopilot/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (sim driver, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateStore := red.NewRateStore(redisClient)
	sessionStore := red.NewSessionStore(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	taskRepo := pg.NewTaskRepo(pool, tm)
	checkpointRepo := pg.NewCheckpointRepo(pool)
	recordSink := pg.NewRecordSink(pool)

	// ---- Browser driver ----
	var driver adapter.BrowserDriver
	switch strings.ToLower(cfg.Browser.Driver) {
	case "sim":
		driver = browserAdapters.NewSimDriver()
		logger.Info().Msg("browser driver: sim (no real traffic)")
	default:
		d, err := browserAdapters.NewCDPDriver(ctx, cfg.Browser, envCredentials, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("browser driver")
		}
		defer d.Close()
		driver = d
		logger.Info().Bool("headless", cfg.Browser.Headless).Msg("browser driver: chrome devtools")
	}

	// ---- Content generator (OpenAI -> Gemini -> noop in dev) ----
	generator, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("content generator")
	}
	if models, merr := generator.ListModels(ctx); merr != nil {
		logger.Warn().Err(merr).Msg("content provider model listing failed")
	} else {
		logger.Info().Strs("models", models).Msg("content provider ready")
	}

	// ---- Alerter ----
	var alerter adapter.Alerter
	if cfg.Alert.TelegramToken != "" {
		alerter, err = notify.NewTelegramAlerter(cfg.Alert.TelegramToken, cfg.Alert.TelegramChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram alerter")
		}
	} else {
		alerter = notify.NewNoopAlerter(logger)
	}

	// ---- Use cases ----
	queue := usecase.NewTaskQueue(taskRepo, checkpointRepo, cfg.Orchestrator.MaxRetryAttempts, logger)
	governor := usecase.NewRateGovernor(rateStore, cfg.Orchestrator.RateLimits, cfg.Orchestrator.RetryBackoffBase, logger)
	sessions := usecase.NewSessionManager(sessionStore, driver, locker, cfg.Orchestrator.SessionFreshnessThreshold, cfg.Session.AuthAttempts, logger)
	content := usecase.NewContentService(generator, cfg.Orchestrator.ContentGenerationTimeout, logger)
	recovery := usecase.NewRecovery(taskRepo, checkpointRepo, logger)

	// ---- Engine & pool ----
	account := cfg.Session.Accounts[0]
	engine := worker.NewEngine(worker.EngineParams{
		Queue:       queue,
		Governor:    governor,
		Sessions:    sessions,
		Content:     content,
		Browser:     driver,
		Tasks:       taskRepo,
		Checkpoints: checkpointRepo,
		Sink:        recordSink,
		TxManager:   tm,
		Alerter:     alerter,

		AccountID:    account,
		PollInterval: cfg.Orchestrator.PollInterval,
	}, logger)
	workerPool := worker.NewPool(cfg.Orchestrator.MaxConcurrentWorkers, logger)
	workerPool.Start(ctx)

	// Reconcile before claiming: interrupted tasks resume from their last
	// checkpoint ahead of any fresh work.
	resumed, err := recovery.Reconcile(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("recovery")
	}
	if len(resumed) > 0 {
		logger.Info().Int("count", len(resumed)).Msg("resuming interrupted tasks")
		engine.Resume(resumed, workerPool)
	}

	claimCtx, stopClaiming := context.WithCancel(ctx)
	go engine.Start(claimCtx, workerPool)

	// ---- Background workers ----
	sweeper := sched.NewSessionSweeper(30*time.Minute, cfg.Session.Accounts, sessions, logger)
	go func() { _ = sweeper.Run(ctx) }()
	reaper := sched.NewReaper(5*time.Minute, 30*time.Minute, recovery, func(tasks []*model.Task) {
		engine.Resume(tasks, workerPool)
	}, logger)
	go func() { _ = reaper.Run(ctx) }()

	// ---- HTTP ----
	v1 := apiv1.NewServer(queue, governor, sessions, checkpointRepo, recordSink, engine, logger)
	server := httpapi.NewServer(cfg.API, v1, logger)
	go func() {
		if err := server.Run(); err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	// Stop claiming first, then let in-flight tasks reach their next
	// checkpoint, then tear down the outer layers.
	stopClaiming()
	workerPool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	cancel()
	logger.Info().Msg("shutdown complete")
}

// envCredentials resolves account passwords from the environment; the
// account ID doubles as the login user. The key is the account with
// non-alphanumerics mapped to underscores, e.g. AUTOPILOT_PASSWORD_ME_AT_EXAMPLE_COM.
func envCredentials(accountID string) (string, string, error) {
	key := "AUTOPILOT_PASSWORD_" + strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, accountID))
	pw := os.Getenv(key)
	if pw == "" {
		return "", "", fmt.Errorf("no password in env %s for account %s", key, accountID)
	}
	return accountID, pw, nil
}

// buildGenerator picks a provider, wraps it in the concurrency limiter, and
// overlays per-kind model routing when kind_models is configured.
func buildGenerator(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.ContentGenerator, error) {
	base, err := newProvider(ctx, cfg, cfg.AI.DefaultModel)
	if err != nil {
		return nil, err
	}
	if cfg.Runtime.Dev && base == nil {
		logger.Warn().Msg("no AI provider configured, using noop generator")
		base = aiAdapters.NewNoopGenerator()
	}
	if base == nil {
		return nil, fmt.Errorf("no AI provider configured: set ai.openai_key or ai.gemini_key")
	}

	byKind := make(map[model.ActionKind]adapter.ContentGenerator, len(cfg.AI.KindModels))
	for kind, name := range cfg.AI.KindModels {
		gen, err := newProvider(ctx, cfg, name)
		if err != nil {
			return nil, fmt.Errorf("model for kind %s: %w", kind, err)
		}
		byKind[model.ActionKind(kind)] = gen
	}
	var out adapter.ContentGenerator = base
	if len(byKind) > 0 {
		out = aiAdapters.NewKindRouter(byKind, base)
	}
	return aiAdapters.NewLimitedGenerator(out, cfg.AI.ConcurrentLimit), nil
}

func newProvider(ctx context.Context, cfg *config.Config, modelName string) (adapter.ContentGenerator, error) {
	switch {
	case cfg.AI.OpenAIKey != "":
		return aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, modelName)
	case cfg.AI.GeminiKey != "":
		return aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, modelName, 2048)
	default:
		return nil, nil
	}
}
