package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-engine/internal/config"
	"github.com/ignatzorin/escrow-engine/internal/db"
	"github.com/ignatzorin/escrow-engine/internal/goroutine"
	httpHandlers "github.com/ignatzorin/escrow-engine/internal/http/handlers"
	httpRouter "github.com/ignatzorin/escrow-engine/internal/http/router"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/payout"
	"github.com/ignatzorin/escrow-engine/internal/repository"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Токены выпускает внешний сервис идентификации, мы только проверяем подпись.
	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	// Репозитории.
	escrowRepo := repository.NewEscrowRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	payoutRepo := repository.NewPayoutRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	notificationService := service.NewNotificationService(notificationRepo)
	payoutProvider := payout.NewClient(cfg.PayoutBaseURL, cfg.PayoutAPIKey)
	payoutAdapter := service.NewPayoutAdapter(payoutProvider, payoutRepo)
	escrowService := service.NewEscrowService(escrowRepo, payoutAdapter, payoutRepo, notificationService, cfg.AutoReleasePeriod)
	disputeService := service.NewDisputeService(disputeRepo, escrowService, notificationService)

	// Планировщик автовыпуска: единственный источник таймерных переходов.
	scheduler := service.NewAutoReleaseScheduler(escrowService, cfg.SweepInterval, cfg.SweepBatchSize)
	goroutine.SafeGoWithContext(ctx, scheduler.Run)

	// HTTP хэндлеры.
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	adminHandler := httpHandlers.NewAdminHandler(disputeService, scheduler, payoutAdapter)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, escrowHandler, disputeHandler, adminHandler, notificationHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
