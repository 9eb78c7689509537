package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afyacare/clinic-intake-platform/cmd/mainconfig"
	"github.com/afyacare/clinic-intake-platform/internal/api/router"
	"github.com/afyacare/clinic-intake-platform/internal/clinic"
	appconfig "github.com/afyacare/clinic-intake-platform/internal/config"
	"github.com/afyacare/clinic-intake-platform/internal/consultations"
	"github.com/afyacare/clinic-intake-platform/internal/conversation"
	"github.com/afyacare/clinic-intake-platform/internal/messaging"
	"github.com/afyacare/clinic-intake-platform/internal/observability/metrics"
	"github.com/afyacare/clinic-intake-platform/internal/patients"
	"github.com/afyacare/clinic-intake-platform/internal/tenancy"
	"github.com/afyacare/clinic-intake-platform/internal/triage"
	"github.com/afyacare/clinic-intake-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic intake platform",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	intakeMetrics := metrics.NewIntakeMetrics(registry)

	// Repositories.
	tenantRepo := tenancy.NewRepository(pool)
	patientRepo := patients.NewRepository(pool)
	consultationRepo := consultations.NewRepository(pool)
	stateStore := conversation.NewPostgresStore(pool, consultationRepo)
	processedStore := messaging.NewProcessedStore(pool)
	statsRepo := clinic.NewStatsRepository(pool)

	// The triage model chain: Bedrock primary, Gemini fallback. Either
	// may be absent; the analyzer degrades to its fixed assessment.
	llm := buildLLMChain(ctx, cfg, logger)
	analyzer := triage.NewAnalyzer(llm, triage.AnalyzerConfig{
		Model:       cfg.BedrockModelID,
		Timeout:     cfg.TriageTimeout,
		MaxTokens:   int32(cfg.TriageMaxTokens),
		Temperature: float32(cfg.TriageTemperature),
	}, logger, intakeMetrics)

	rdb := mainconfig.NewRedisClient(cfg)
	if rdb != nil {
		defer rdb.Close()
	}
	hospitals := conversation.NewHospitalDirectory(rdb, logger.Logger)

	engine := conversation.NewEngine(stateStore, patientRepo, consultationRepo, analyzer, hospitals, intakeMetrics, logger)

	// Tenant routing, with a default clinic created on first boot.
	directory := tenancy.NewDirectory(tenantRepo, logger)
	if cfg.DefaultClinicWhatsApp != "" {
		if _, err := directory.EnsureDefault(ctx, tenancy.DefaultTenant{
			Name:           cfg.DefaultClinicName,
			Phone:          cfg.DefaultClinicPhone,
			WhatsAppNumber: cfg.DefaultClinicWhatsApp,
		}); err != nil {
			logger.Error("failed to bootstrap default clinic", "error", err)
			os.Exit(1)
		}
	}

	webhookURL := strings.TrimSuffix(cfg.PublicBaseURL, "/") + "/webhook/whatsapp"
	webhookHandler := messaging.NewWebhookHandler(directory, engine, processedStore, intakeMetrics, logger, cfg.TwilioAuthToken, webhookURL)

	var sender *messaging.WhatsAppSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		sender = messaging.NewWhatsAppSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger)
	}

	var adminSender clinicSender
	if sender != nil {
		adminSender = sender
	}
	adminHandler := clinic.NewAdminHandler(tenantRepo, patientRepo, consultationRepo, statsRepo, hospitals, adminSender, logger)

	r := router.New(&router.Config{
		Logger:          logger,
		WebhookHandler:  webhookHandler,
		AdminHandler:    adminHandler,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		DB:              pool,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type clinicSender interface {
	Send(ctx context.Context, to, body string) error
}

func buildLLMChain(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) triage.LLMClient {
	var primary triage.LLMClient
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		primary = triage.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var fallback triage.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := triage.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to initialize gemini client", "error", err)
			os.Exit(1)
		}
		fallback = gemini
	}

	switch {
	case primary != nil && fallback != nil:
		return triage.NewFallbackLLMClient(primary, fallback, logger.Logger)
	case primary != nil:
		return primary
	case fallback != nil:
		return fallback
	}
	logger.Warn("no triage model configured, assessments will use the fixed fallback")
	return nil
}
