package gateway

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/opsgrid/opsgrid/internal/config"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// stripeGateway implements Gateway against the Stripe API
type stripeGateway struct {
	client *stripe.Client
	logger *logger.Logger
}

// NewStripeGateway creates the Stripe-backed payment gateway
func NewStripeGateway(cfg *config.Configuration, log *logger.Logger) (Gateway, error) {
	if cfg.Gateway.Stripe.SecretKey == "" {
		return nil, ierr.NewError("stripe secret key not configured").
			WithHint("Stripe gateway requires a secret key").
			Mark(ierr.ErrValidation)
	}

	return &stripeGateway{
		client: stripe.NewClient(cfg.Gateway.Stripe.SecretKey, nil),
		logger: log,
	}, nil
}

func (g *stripeGateway) CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*PaymentIntent, error) {
	amountInCents := req.Amount.Mul(decimal.NewFromInt(100)).IntPart()
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(req.Currency),
		Metadata: req.Metadata,
	}

	var intent *stripe.PaymentIntent
	err := g.withRetry(ctx, func() error {
		var err error
		intent, err = g.client.V1PaymentIntents.Create(ctx, params)
		return err
	})
	if err != nil {
		g.logger.Errorw("failed to create payment intent",
			"tenant_id", req.TenantID,
			"amount", req.Amount.String(),
			"error", err)
		return nil, ierr.WithError(err).
			WithHint("Unable to register the charge with the payment provider").
			WithReportableDetails(map[string]any{"tenant_id": req.TenantID}).
			Mark(ierr.ErrIntegration)
	}

	return fromStripeIntent(intent), nil
}

func (g *stripeGateway) ConfirmPayment(ctx context.Context, intentID string, card *CardDetails) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentConfirmParams{}

	if card != nil {
		method, err := g.client.V1PaymentMethods.Create(ctx, &stripe.PaymentMethodCreateParams{
			Type: stripe.String("card"),
			Card: &stripe.PaymentMethodCreateCardParams{
				Number:   stripe.String(card.Number),
				ExpMonth: stripe.Int64(int64(card.ExpMonth)),
				ExpYear:  stripe.Int64(int64(card.ExpYear)),
				CVC:      stripe.String(card.CVC),
			},
		})
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Invalid card details").
				Mark(ierr.ErrValidation)
		}
		params.PaymentMethod = stripe.String(method.ID)
	} else {
		params.OffSession = stripe.Bool(true)
	}

	var intent *stripe.PaymentIntent
	err := g.withRetry(ctx, func() error {
		var err error
		intent, err = g.client.V1PaymentIntents.Confirm(ctx, intentID, params)
		return err
	})
	if err != nil {
		// A decline is a business outcome, not a transport failure; report
		// it through the intent status so dunning counts the attempt.
		if stripeErr, ok := err.(*stripe.Error); ok {
			g.logger.Warnw("payment confirmation declined",
				"intent_id", intentID,
				"stripe_error_code", stripeErr.Code)
			return &PaymentIntent{
				ID:           intentID,
				Status:       types.PaymentIntentStatusFailed,
				ErrorMessage: string(stripeErr.Code),
			}, nil
		}

		g.logger.Errorw("failed to confirm payment intent",
			"intent_id", intentID,
			"error", err)
		return nil, ierr.WithError(err).
			WithHint("Unable to confirm the charge with the payment provider").
			WithReportableDetails(map[string]any{"intent_id": intentID}).
			Mark(ierr.ErrIntegration)
	}

	return fromStripeIntent(intent), nil
}

// withRetry retries transient transport failures with exponential backoff.
// Stripe API errors carry a request outcome and are never retried here.
func (g *stripeGateway) withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if _, ok := err.(*stripe.Error); ok {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))
}

func fromStripeIntent(intent *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:       intent.ID,
		Amount:   decimal.NewFromInt(intent.Amount).Div(decimal.NewFromInt(100)),
		Currency: string(intent.Currency),
		Metadata: intent.Metadata,
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Status = types.PaymentIntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		out.Status = types.PaymentIntentStatusFailed
	default:
		out.Status = types.PaymentIntentStatusPending
	}

	if intent.LastPaymentError != nil {
		out.Status = types.PaymentIntentStatusFailed
		out.ErrorMessage = intent.LastPaymentError.Msg
	}

	return out
}
