package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsgrid/opsgrid/internal/api"
	"github.com/opsgrid/opsgrid/internal/api/cron"
	v1 "github.com/opsgrid/opsgrid/internal/api/v1"
	"github.com/opsgrid/opsgrid/internal/cache"
	"github.com/opsgrid/opsgrid/internal/config"
	"github.com/opsgrid/opsgrid/internal/gateway"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/notifier"
	"github.com/opsgrid/opsgrid/internal/postgres"
	"github.com/opsgrid/opsgrid/internal/pricing"
	"github.com/opsgrid/opsgrid/internal/repository"
	"github.com/opsgrid/opsgrid/internal/scheduler"
	"github.com/opsgrid/opsgrid/internal/service"
	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/opsgrid/opsgrid/internal/validator"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			provideCache,

			// Postgres
			postgres.NewClient,

			// Payment gateway
			gateway.NewGateway,

			// Notifications
			notifier.NewNotifier,

			// Pricing
			pricing.NewCalculator,

			// Repositories
			repository.NewSubscriptionRepository,
			repository.NewPaymentRepository,
			repository.NewFailureRepository,
			repository.NewPlanChangeRepository,
			repository.NewTenantRepository,
			repository.NewFeatureFlagStore,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewPlanService,
			service.NewStatusService,
			service.NewSnapshotService,
			service.NewRenewalService,
			service.NewDunningService,
		),
	)

	// API and scheduler
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
			provideScheduler,
		),
		fx.Invoke(startServer),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache(cfg *config.Configuration) cache.Cache {
	return cache.NewInMemoryCache(cfg)
}

func provideHandlers(
	logger *logger.Logger,
	planService service.PlanService,
	statusService service.StatusService,
	snapshotService service.SnapshotService,
	renewalService service.RenewalService,
	dunningService service.DunningService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(logger),
		Subscription: v1.NewSubscriptionHandler(planService, statusService, logger),
		Payment:      v1.NewPaymentHandler(snapshotService, logger),
		CronBilling:  cron.NewBillingHandler(renewalService, dunningService, planService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger)
}

func provideScheduler(
	renewalService service.RenewalService,
	dunningService service.DunningService,
	planService service.PlanService,
	logger *logger.Logger,
) *scheduler.Scheduler {
	return scheduler.New(renewalService, dunningService, planService, logger)
}

func startServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Configuration,
	r *gin.Engine,
	sched *scheduler.Scheduler,
	renewalService service.RenewalService,
	dunningService service.DunningService,
	planService service.PlanService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startScheduler(lc, sched, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeCron:
		runJobsOnce(lc, shutdowner, renewalService, dunningService, planService, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting API server...")
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}

func startScheduler(lc fx.Lifecycle, sched *scheduler.Scheduler, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sched.Start()
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			return nil
		},
	})
}

// runJobsOnce executes every billing job a single time and shuts the
// application down. External schedulers run the binary in this mode.
func runJobsOnce(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	renewalService service.RenewalService,
	dunningService service.DunningService,
	planService service.PlanService,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				jobCtx := types.SetUserID(context.Background(), "system")

				if _, err := renewalService.RunForDueSubscriptions(jobCtx); err != nil {
					log.Errorw("renewal run failed", "error", err)
				}
				if _, err := dunningService.RunDunningProcess(jobCtx); err != nil {
					log.Errorw("dunning run failed", "error", err)
				}
				if _, err := planService.ExpireDueTrials(jobCtx); err != nil {
					log.Errorw("trial expiry run failed", "error", err)
				}

				if err := shutdowner.Shutdown(); err != nil {
					log.Errorw("failed to shut down after cron run", "error", err)
				}
			}()
			return nil
		},
	})
}
