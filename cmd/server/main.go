package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"story-canvas/internal/ai"
	"story-canvas/internal/config"
	"story-canvas/internal/events"
	"story-canvas/internal/handler"
	"story-canvas/internal/logger"
	"story-canvas/internal/middleware"
	"story-canvas/internal/session"
	"story-canvas/internal/tencent"
	"story-canvas/internal/video"
	"story-canvas/pkg/taskmanager"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file (ignored if missing)")
	flag.Parse()

	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	cfg.LogSummary(log)
	if status := cfg.Validate(); !status.Valid {
		log.Warn("Configuration incomplete, affected features will fail until fixed",
			zap.Strings("missing", status.Missing),
			zap.Strings("errors", status.Errors),
		)
	}

	// --- Providers ---
	aiClient, err := ai.NewAIClient(cfg.AI, log.Named("AIClient"))
	if err != nil {
		log.Fatal("Failed to create AI client", zap.Error(err))
	}
	storyteller := ai.NewStoryteller(aiClient, cfg.AI.HistoryTokenBudget, ai.TiktokenCounter(cfg.AI.Model), log.Named("Storyteller"))

	videoClient := video.NewClient(cfg.Video.BaseURL, cfg.Video.APIKey, cfg.Video.Model, cfg.Video.RequestTimeout, log.Named("VideoClient"))
	videoPoller := video.NewPoller(videoClient, cfg.Video, log.Named("VideoPoller"))

	tencentClient, err := tencent.NewClient(cfg.Tencent, log.Named("TencentClient"))
	if err != nil {
		log.Fatal("Failed to create Tencent Cloud client", zap.Error(err))
	}
	speech := tencent.NewSpeech(tencentClient, cfg.Tencent.VoiceType, cfg.Tencent.MaxTextRunes, cfg.Tencent.ASREngine, log.Named("Speech"))

	// --- Sessions ---
	hub := events.NewHub(log.Named("EventHub"))
	tasks := taskmanager.New(taskmanager.Config{MaxTasksPerOwner: cfg.Session.MaxTasks}, log.Named("TaskManager"))
	tasks.SetNotifier(hub)

	tokens, err := session.NewTokenIssuer(cfg.Session.JWTSecret, cfg.Session.TokenTTL, log)
	if err != nil {
		log.Fatal("Failed to create token issuer", zap.Error(err))
	}
	sessions := session.NewManager(storyteller, videoPoller, speech, tasks, hub, tokens, cfg, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go sessions.Run(ctx)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapLogger(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	if origins := cfg.GetAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
		log.Info("CORS_ALLOWED_ORIGINS not set, allowing default", zap.String("origin", "http://localhost:5173"))
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	h := handler.NewHandler(sessions, hub, speech, cfg, log)
	h.RegisterRoutes(router,
		middleware.SessionAuth(tokens, log),
		handler.NewRateLimiter(cfg.Server.VideoRateWindow, cfg.Server.VideoRateLimit, log.Named("VideoRateLimit")),
	)

	// Prometheus подключаем после регистрации маршрутов, он же отдает /metrics
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	stop()
	sessions.Shutdown()
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Error("Background tasks did not finish in time", zap.Error(err))
	}

	log.Info("Server exiting")
}
