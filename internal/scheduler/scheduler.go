package scheduler

import (
	"context"

	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/service"
	"github.com/robfig/cron/v3"
)

// Job schedules. Renewal runs first each hour so dunning sees any failures
// it produced in the same cycle.
const (
	renewalSchedule     = "0 * * * *"
	dunningSchedule     = "20 * * * *"
	trialExpirySchedule = "40 * * * *"
)

// Scheduler runs the recurring billing jobs in-process. It covers the
// local deployment mode where no external scheduler hits the cron
// endpoints.
type Scheduler struct {
	cron           *cron.Cron
	renewalService service.RenewalService
	dunningService service.DunningService
	planService    service.PlanService
	logger         *logger.Logger
}

func New(
	renewalService service.RenewalService,
	dunningService service.DunningService,
	planService service.PlanService,
	logger *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cron:           cron.New(),
		renewalService: renewalService,
		dunningService: dunningService,
		planService:    planService,
		logger:         logger,
	}
}

// Start registers the billing jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(renewalSchedule, s.runRenewals); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(dunningSchedule, s.runDunning); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(trialExpirySchedule, s.runTrialExpiry); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Infow("billing scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Infow("billing scheduler stopped")
}

func (s *Scheduler) runRenewals() {
	if _, err := s.renewalService.RunForDueSubscriptions(context.Background()); err != nil {
		s.logger.Errorw("scheduled renewal run failed", "error", err)
	}
}

func (s *Scheduler) runDunning() {
	if _, err := s.dunningService.RunDunningProcess(context.Background()); err != nil {
		s.logger.Errorw("scheduled dunning run failed", "error", err)
	}
}

func (s *Scheduler) runTrialExpiry() {
	if _, err := s.planService.ExpireDueTrials(context.Background()); err != nil {
		s.logger.Errorw("scheduled trial expiry run failed", "error", err)
	}
}
