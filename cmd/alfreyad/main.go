package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/app/migrate"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/capability"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/events"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/extract"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/gemini"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/github"
	httpx "github.com/EasyAdvertisers/alfreyaa-app/internal/http"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/netlify"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/repository/postgres"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/service/auth"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/service/deploy"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/service/session"
	"github.com/EasyAdvertisers/alfreyaa-app/internal/source"
	"github.com/EasyAdvertisers/alfreyaa-app/pkg/config"
	"github.com/EasyAdvertisers/alfreyaa-app/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("alfreyad", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := events.NewHub(log)

	provider := gemini.New(gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		ImageModel: cfg.GeminiImageModel,
		Timeout:    cfg.GeminiTimeout,
	}, log)
	extractor := extract.New(cfg.FetchProxyURL, cfg.FetchTimeout, log)

	siteSource, err := source.NewDirProvider(cfg.SourceDir)
	if err != nil {
		log.Error("failed to open site source directory", "error", err, "dir", cfg.SourceDir)
		os.Exit(1)
	}

	caps := capability.New(provider, extractor, siteSource, log)
	repoHost := github.New(cfg.GitHubBaseURL, cfg.GitHubToken)
	siteHost := netlify.New(cfg.NetlifyBaseURL, cfg.NetlifyToken)
	deploySvc := deploy.New(repoHost, siteHost, siteSource, repo, hub, log, deploy.Config{
		RepoBase:  cfg.DeployRepoBase,
		Branch:    cfg.DeployBranch,
		ReadyWait: cfg.DeployReadyWait,
	})

	authSvc := auth.New(repo, log, cfg)
	sessionSvc := session.New(caps, deploySvc, repo, hub, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, sessionSvc, hub, limiter, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
