package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opsgrid/opsgrid/internal/api/dto"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/domain/payment"
	"github.com/opsgrid/opsgrid/internal/service"
	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/samber/lo"
)

// defaultPaymentListLimit is used when the client does not pass one
const defaultPaymentListLimit = 20

type PaymentHandler struct {
	service service.SnapshotService
	log     *logger.Logger
}

func NewPaymentHandler(service service.SnapshotService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

// @Summary Start a checkout
// @Description Price the requested plan and register the charge with the gateway
// @Tags Payments
// @Accept json
// @Produce json
// @Param checkout body dto.CheckoutRequest true "Checkout configuration"
// @Success 201 {object} dto.CheckoutResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /payments/checkout [post]
func (h *PaymentHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	resp, err := h.service.Checkout(ctx, types.GetTenantID(ctx), &req)
	if err != nil {
		h.log.Error("Failed to start checkout", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Confirm a checkout
// @Description Confirm the gateway charge and apply the paid snapshot
// @Tags Payments
// @Accept json
// @Produce json
// @Param confirmation body dto.ConfirmCheckoutRequest true "Checkout confirmation"
// @Success 200 {object} dto.ConfirmCheckoutResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /payments/checkout/confirm [post]
func (h *PaymentHandler) ConfirmCheckout(c *gin.Context) {
	var req dto.ConfirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	resp, err := h.service.ConfirmCheckout(ctx, types.GetTenantID(ctx), &req)
	if err != nil {
		h.log.Error("Failed to confirm checkout", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a payment by ID
// @Description Get a payment snapshot by ID
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} dto.PaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Payment ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	snap, err := h.service.GetPayment(ctx, id)
	if err != nil {
		h.log.Error("Failed to get payment", "error", err)
		c.Error(err)
		return
	}

	if snap.TenantID != types.GetTenantID(ctx) {
		c.Error(ierr.NewError("payment does not belong to tenant").
			WithHint("Payment not found").
			Mark(ierr.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, dto.NewPaymentResponse(snap))
}

// @Summary List payments
// @Description List the tenant payment snapshots, newest first
// @Tags Payments
// @Produce json
// @Param limit query int false "Maximum number of payments to return"
// @Success 200 {object} dto.ListPaymentsResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	limit := defaultPaymentListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.Error(ierr.NewError("invalid limit").
				WithHint("Limit must be a positive integer").
				Mark(ierr.ErrValidation))
			return
		}
		limit = parsed
	}

	ctx := c.Request.Context()
	snaps, err := h.service.ListPayments(ctx, types.GetTenantID(ctx), limit)
	if err != nil {
		h.log.Error("Failed to list payments", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, &dto.ListPaymentsResponse{
		Items: lo.Map(snaps, func(s *payment.Snapshot, _ int) *dto.PaymentResponse {
			return dto.NewPaymentResponse(s)
		}),
		Total: len(snaps),
	})
}
