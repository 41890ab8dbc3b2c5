package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/config"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers"
	"github.com/ignatzorin/escrow-engine/internal/http/middleware"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	escrowHandler *handlers.EscrowHandler,
	disputeHandler *handlers.DisputeHandler,
	adminHandler *handlers.AdminHandler,
	notificationHandler *handlers.NotificationHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	mutateRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		// Escrow
		protected.GET("/escrows/my", escrowHandler.ListMyEscrows)
		protected.GET("/escrows/:id", middleware.UUIDValidator("id"), escrowHandler.GetEscrow)
		protected.GET("/orders/:id/escrows", middleware.UUIDValidator("id"), escrowHandler.ListOrderEscrows)
		protected.POST("/escrows/:id/delivered", mutateRateLimit, middleware.UUIDValidator("id"), escrowHandler.MarkDelivered)
		protected.POST("/escrows/:id/confirm", mutateRateLimit, middleware.UUIDValidator("id"), escrowHandler.ConfirmReceipt)

		// Споры
		protected.POST("/escrows/:id/dispute", mutateRateLimit, middleware.UUIDValidator("id"), disputeHandler.OpenDispute)
		protected.GET("/disputes/my", disputeHandler.ListMyDisputes)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.GetDispute)
		protected.GET("/disputes/:id/actions", middleware.UUIDValidator("id"), disputeHandler.ListDisputeActions)
		protected.POST("/disputes/:id/closure-request", mutateRateLimit, middleware.UUIDValidator("id"), disputeHandler.RequestClosure)
		protected.POST("/disputes/:id/closure-response", mutateRateLimit, middleware.UUIDValidator("id"), disputeHandler.RespondClosure)

		// Outbox для внешней системы уведомлений
		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	}

	// Административные маршруты и вызовы подсистемы заказов
	admin := api.Group("/")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole("admin"))
	{
		admin.POST("/escrows", escrowHandler.CreateEscrows)
		admin.POST("/admin/disputes/:id/resolve", middleware.UUIDValidator("id"), adminHandler.ResolveDispute)
		admin.POST("/admin/sweep", adminHandler.RunSweep)
		admin.PUT("/admin/payout-accounts/:id", middleware.UUIDValidator("id"), adminHandler.SavePayoutAccount)
	}

	return r
}
