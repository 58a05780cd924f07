package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsgrid/opsgrid/internal/api/dto"
	"github.com/opsgrid/opsgrid/internal/domain/planchange"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/service"
	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/samber/lo"
)

// planChangeHistoryLimit caps the audit entries returned per request
const planChangeHistoryLimit = 50

type SubscriptionHandler struct {
	planService   service.PlanService
	statusService service.StatusService
	log           *logger.Logger
}

func NewSubscriptionHandler(planService service.PlanService, statusService service.StatusService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{planService: planService, statusService: statusService, log: log}
}

// @Summary Start a trial
// @Description Put the tenant on a time-boxed enterprise-level trial
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Success 201 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/trial [post]
func (h *SubscriptionHandler) StartTrial(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := h.planService.StartTrial(ctx, types.GetTenantID(ctx))
	if err != nil {
		h.log.Error("Failed to start trial", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSubscriptionResponse(sub))
}

// @Summary Get subscription status
// @Description Get the subscription with health and access info
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionStatusResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/status [get]
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	resp, err := h.statusService.GetStatus(ctx, types.GetTenantID(ctx))
	if err != nil {
		h.log.Error("Failed to get subscription status", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Update the plan
// @Description Change the tenant plan tier, seat count and addons
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param plan body dto.UpdatePlanRequest true "Plan configuration"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/plan [put]
func (h *SubscriptionHandler) UpdatePlan(c *gin.Context) {
	var req dto.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	ctx := c.Request.Context()
	sub, err := h.planService.UpdatePlan(ctx, types.GetTenantID(ctx), req.PlanTier, req.UserLimit, req.Addons)
	if err != nil {
		h.log.Error("Failed to update plan", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSubscriptionResponse(sub))
}

// @Summary Toggle an addon
// @Description Enable or disable an addon on the team plan
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param addon body dto.ToggleAddonRequest true "Addon to toggle"
// @Success 200 {object} dto.ToggleAddonResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/addons [post]
func (h *SubscriptionHandler) ToggleAddon(c *gin.Context) {
	var req dto.ToggleAddonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	ctx := c.Request.Context()
	resp, err := h.planService.ToggleAddon(ctx, types.GetTenantID(ctx), req.Addon)
	if err != nil {
		h.log.Error("Failed to toggle addon", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Schedule a downgrade
// @Description Schedule a downgrade for the end of the billing period. Trials convert immediately.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param downgrade body dto.ScheduleDowngradeRequest true "Downgrade target"
// @Success 200 {object} dto.ScheduleDowngradeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/downgrade [post]
func (h *SubscriptionHandler) ScheduleDowngrade(c *gin.Context) {
	var req dto.ScheduleDowngradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	ctx := c.Request.Context()
	resp, err := h.planService.ScheduleDowngrade(ctx, types.GetTenantID(ctx), req.TargetPlan, req.TargetUserLimit)
	if err != nil {
		h.log.Error("Failed to schedule downgrade", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel a scheduled downgrade
// @Description Cancel the pending downgrade if it has not locked in yet
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/downgrade [delete]
func (h *SubscriptionHandler) CancelDowngrade(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := h.planService.CancelScheduledDowngrade(ctx, types.GetTenantID(ctx))
	if err != nil {
		h.log.Error("Failed to cancel scheduled downgrade", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSubscriptionResponse(sub))
}

// @Summary Update subscription status
// @Description Transition the subscription into the given status
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param status body dto.UpdateStatusRequest true "Target status"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/status [put]
func (h *SubscriptionHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	metadata := types.Metadata{}
	if req.Reason != "" {
		metadata["reason"] = req.Reason
	}

	ctx := c.Request.Context()
	sub, err := h.statusService.UpdateStatus(ctx, types.GetTenantID(ctx), req.Status, req.Event, metadata)
	if err != nil {
		h.log.Error("Failed to update subscription status", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSubscriptionResponse(sub))
}

// @Summary List plan changes
// @Description List the tenant plan change audit trail, newest first
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} dto.ListPlanChangesResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /subscriptions/plan-changes [get]
func (h *SubscriptionHandler) ListPlanChanges(c *gin.Context) {
	ctx := c.Request.Context()

	entries, err := h.planService.ListPlanChanges(ctx, types.GetTenantID(ctx), planChangeHistoryLimit)
	if err != nil {
		h.log.Error("Failed to list plan changes", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, &dto.ListPlanChangesResponse{
		Items: lo.Map(entries, func(e *planchange.Entry, _ int) *dto.PlanChangeResponse {
			return dto.NewPlanChangeResponse(e)
		}),
		Total: len(entries),
	})
}
