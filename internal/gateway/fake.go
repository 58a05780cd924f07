package gateway

import (
	"context"
	"sync"

	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/types"
)

// fakeGateway is the development/test payment gateway. Every charge succeeds
// unless a card number ending in 0002 is used, mirroring the well-known
// decline test card.
type fakeGateway struct {
	mu      sync.Mutex
	intents map[string]*PaymentIntent
}

// NewFakeGateway creates the fake payment gateway
func NewFakeGateway() Gateway {
	return &fakeGateway{
		intents: make(map[string]*PaymentIntent),
	}
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req *CreateIntentRequest) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent := &PaymentIntent{
		ID:       types.GenerateUUIDWithPrefix("pi_fake"),
		Status:   types.PaymentIntentStatusPending,
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: req.Metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) ConfirmPayment(_ context.Context, intentID string, card *CardDetails) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentID]
	if !ok {
		return nil, ierr.NewError("payment intent not found").
			WithHint("Unknown payment intent").
			WithReportableDetails(map[string]any{"intent_id": intentID}).
			Mark(ierr.ErrNotFound)
	}

	if card != nil && len(card.Number) >= 4 && card.Number[len(card.Number)-4:] == "0002" {
		intent.Status = types.PaymentIntentStatusFailed
		intent.ErrorMessage = "card_declined"
		return intent, nil
	}

	intent.Status = types.PaymentIntentStatusSucceeded
	return intent, nil
}
