package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/text/language"

	"projection/internal/cache"
	"projection/internal/cli"
	"projection/internal/core"
	apphttp "projection/internal/http"
	"projection/internal/log"
	"projection/internal/ports"
	"projection/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	be := cli.InitBackend(context.Background(), logger, cfg)

	boardCache := cache.NewLRUCache[[]core.BoardCategory](cfg.BoardCacheSize, cfg.BoardCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(boardCache)
	cacheManager.StartCleanup(time.Minute)

	opts := []services.Option{
		services.WithBoardCache(boardCache),
		services.WithLogger(logger),
		services.WithDefaultUserID(cfg.DefaultUserID),
	}
	if be.Publisher != nil {
		opts = append(opts, services.WithPublisher(be.Publisher))
	}
	service := services.NewProjectionService(be.Repository, opts...)

	// Validate already rejected unparsable locales.
	locale, _ := language.Parse(cfg.DisplayLocale)

	srv := apphttp.NewServer(":"+cfg.Port, service, apphttp.Options{
		MonthsBack:         cfg.BoardMonthsBack,
		MonthsForward:      cfg.BoardMonthsForward,
		Locale:             locale,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	// Writes from the recurring worker arrive as events; without a broker
	// they show up once BOARD_CACHE_TTL expires.
	if be.Subscriber != nil {
		go func() {
			err := be.Subscriber.SubscribeTransactionEvents(ctx, func(context.Context, ports.EventKind, []int64) error {
				service.InvalidateBoards()
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Board cache subscription failed", log.FieldError, err)
			}
		}()
	}

	logger.Info("Starting projection server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locale", locale.String(),
		log.FieldMonthsBack, cfg.BoardMonthsBack,
		log.FieldMonthsForward, cfg.BoardMonthsForward)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
