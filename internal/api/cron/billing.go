package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/service"
)

// BillingHandler exposes the recurring billing jobs as HTTP endpoints so an
// external scheduler can trigger them. In local mode the in-process cron
// scheduler runs the same services directly.
type BillingHandler struct {
	renewalService service.RenewalService
	dunningService service.DunningService
	planService    service.PlanService
	logger         *logger.Logger
}

// NewBillingHandler creates a new billing cron handler
func NewBillingHandler(
	renewalService service.RenewalService,
	dunningService service.DunningService,
	planService service.PlanService,
	logger *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		renewalService: renewalService,
		dunningService: dunningService,
		planService:    planService,
		logger:         logger,
	}
}

// ProcessRenewals charges every subscription whose billing period has ended
func (h *BillingHandler) ProcessRenewals(c *gin.Context) {
	h.logger.Infow("starting renewal processing cron job")

	response, err := h.renewalService.RunForDueSubscriptions(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to process renewals",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed renewal processing cron job",
		"total", response.Total,
		"succeeded", response.Succeeded,
		"failed", response.Failed)
	c.JSON(http.StatusOK, response)
}

// ProcessDunning retries past-due subscriptions and cancels the ones whose
// grace period has expired
func (h *BillingHandler) ProcessDunning(c *gin.Context) {
	h.logger.Infow("starting dunning processing cron job")

	response, err := h.dunningService.RunDunningProcess(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to process dunning",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed dunning processing cron job",
		"total_checked", response.TotalChecked,
		"recovered", response.Recovered,
		"failed", response.Failed,
		"canceled", response.Canceled)
	c.JSON(http.StatusOK, response)
}

// ExpireTrials downgrades every trial that has run past its end date
func (h *BillingHandler) ExpireTrials(c *gin.Context) {
	h.logger.Infow("starting trial expiry cron job")

	response, err := h.planService.ExpireDueTrials(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to expire trials",
			"error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed trial expiry cron job",
		"total", response.Total,
		"ended", response.Ended,
		"failed", response.Failed)
	c.JSON(http.StatusOK, response)
}
