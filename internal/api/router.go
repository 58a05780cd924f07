package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opsgrid/opsgrid/internal/api/cron"
	v1 "github.com/opsgrid/opsgrid/internal/api/v1"
	"github.com/opsgrid/opsgrid/internal/config"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/rest/middleware"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Subscription *v1.SubscriptionHandler
	Payment      *v1.PaymentHandler
	CronBilling  *cron.BillingHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1", middleware.TenantMiddleware)
	registerV1Routes(v1Group, handlers)

	cronGroup := router.Group("/cron", middleware.CronAuthMiddleware)
	registerCronRoutes(cronGroup, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	// Subscription routes
	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("/trial", handlers.Subscription.StartTrial)
		subscriptions.GET("/status", handlers.Subscription.GetStatus)
		subscriptions.PUT("/status", handlers.Subscription.UpdateStatus)
		subscriptions.PUT("/plan", handlers.Subscription.UpdatePlan)
		subscriptions.POST("/addons", handlers.Subscription.ToggleAddon)
		subscriptions.POST("/downgrade", handlers.Subscription.ScheduleDowngrade)
		subscriptions.DELETE("/downgrade", handlers.Subscription.CancelDowngrade)
		subscriptions.GET("/plan-changes", handlers.Subscription.ListPlanChanges)
	}

	// Payment routes
	payments := router.Group("/payments")
	{
		payments.POST("/checkout", handlers.Payment.Checkout)
		payments.POST("/checkout/confirm", handlers.Payment.ConfirmCheckout)
		payments.GET("", handlers.Payment.ListPayments)
		payments.GET("/:id", handlers.Payment.GetPayment)
	}
}

func registerCronRoutes(router *gin.RouterGroup, handlers Handlers) {
	billing := router.Group("/billing")
	{
		billing.POST("/renewals", handlers.CronBilling.ProcessRenewals)
		billing.POST("/dunning", handlers.CronBilling.ProcessDunning)
		billing.POST("/trials/expire", handlers.CronBilling.ExpireTrials)
	}
}
