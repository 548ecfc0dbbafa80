package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/broker"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/llm"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/plausibility"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/questionbank"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/riskanalysis"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/submission"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

const (
	createLimit    = 20
	createInterval = time.Minute
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("timing", cfg.TimingPolicy).
		Str("questions", cfg.QuestionSource).
		Msg("Starting proctor server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	questionRepo := repository.NewQuestionRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Load Question Bank ────────────────────────────────────────────
	var loader questionbank.Loader = questionbank.FileLoader{Path: cfg.QuestionFile}
	if cfg.QuestionSource == "postgres" {
		loader = questionbank.PostgresLoader{Store: questionRepo}
	}
	questions, err := loader.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.QuestionSource).Msg("Failed to load question bank")
	}
	log.Info().Int("count", len(questions)).Msg("Question bank loaded")

	// ─── External Collaborators ────────────────────────────────────────
	var (
		checker  proctor.Checker
		analyzer proctor.Analyzer
	)
	gen, err := llm.NewClient(ctx, llm.Config{
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		APIKey:  cfg.LLMAPIKey,
		Timeout: cfg.LLMTimeout,
	}, log)
	switch {
	case err == nil:
		checker = plausibility.NewLLMChecker(gen)
		analyzer = riskanalysis.NewLLMAnalyzer(gen)
	case cfg.ValidationBypass:
		log.Warn().Err(err).Msg("LLM unavailable, risk analysis disabled")
	default:
		log.Fatal().Err(err).Msg("Failed to create LLM client")
	}
	if cfg.ValidationBypass {
		log.Warn().Msg("Identity validation bypassed")
		checker = plausibility.BypassChecker{}
	}

	publisher := broker.NewPublisher(rdb, broker.DefaultBufferSize, func() {
		metrics.DroppedEventsTotal.WithLabelValues("broker").Inc()
	}, log)

	var sink proctor.Sink = submission.NewFormSink(cfg.SubmissionURL, cfg.SubmissionTimeout, log)
	if cfg.ArchiveEnabled {
		sink = submission.NewArchiveSink(sink, publisher, log)
	}

	// ─── Initialize Services ───────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	sessionService, err := service.NewSessionService(cfg, questions, service.SessionDeps{
		Checker:  checker,
		Analyzer: analyzer,
		Sink:     sink,
		Events:   proctor.EventSinks{publisher, metrics.Recorder{}},
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build session service")
	}

	createLimiter := middleware.NewRateLimiter(createLimit, createInterval)
	defer createLimiter.Stop()

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Session: handler.NewSessionHandler(sessionService, authService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(sessionService, handler.RedisFeed(rdb), log),
		Admin:   handler.NewAdminHandler(submissionRepo, service.NewMonitorService(monitorRepo), log),
		System:  handler.NewSystemHandler(rdb, sessionService, log),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
	}

	// ─── Start Background Workers ──────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	publisherDone := make(chan struct{})

	go func() {
		defer close(publisherDone)
		publisher.Run(workerCtx)
	}()
	go worker.NewAnomalyWorker(pool, rdb, log).Start(workerCtx)
	go worker.NewSubmissionWorker(pool, rdb, log).Start(workerCtx)
	go sessionService.RunJanitor(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(router.Deps{
		Auth:          authService,
		Redis:         rdb,
		CreateLimiter: createLimiter,
		Log:           log,
	}, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close every live session so their final events reach the broker.
	sessionService.Shutdown()

	// 3. Stop the publisher and workers, then give the queues time to drain.
	workerCancel()
	<-publisherDone
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
