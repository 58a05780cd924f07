package testutil

import (
	"context"
	"sync"

	"github.com/opsgrid/opsgrid/internal/gateway"
	"github.com/opsgrid/opsgrid/internal/types"
)

// ScriptedGateway is a scriptable gateway.Gateway for tests. By default
// every charge succeeds; declines and transport failures can be scripted
// globally or per tenant.
type ScriptedGateway struct {
	mu             sync.Mutex
	intents        map[string]*gateway.PaymentIntent
	intentTenants  map[string]string
	declineAll     bool
	declineTenants map[string]bool
	transportErr   error

	CreateCalls  int
	ConfirmCalls int
}

// NewScriptedGateway creates a gateway where every charge succeeds
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{
		intents:        make(map[string]*gateway.PaymentIntent),
		intentTenants:  make(map[string]string),
		declineTenants: make(map[string]bool),
	}
}

// Clear resets scripted behavior and recorded intents
func (g *ScriptedGateway) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = make(map[string]*gateway.PaymentIntent)
	g.intentTenants = make(map[string]string)
	g.declineAll = false
	g.declineTenants = make(map[string]bool)
	g.transportErr = nil
	g.CreateCalls = 0
	g.ConfirmCalls = 0
}

// DeclineAll makes every confirmation come back declined
func (g *ScriptedGateway) DeclineAll(decline bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declineAll = decline
}

// DeclineTenant makes confirmations for one tenant come back declined
func (g *ScriptedGateway) DeclineTenant(tenantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declineTenants[tenantID] = true
}

// AcceptTenant removes a scripted decline for one tenant
func (g *ScriptedGateway) AcceptTenant(tenantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.declineTenants, tenantID)
}

// SetTransportError makes every gateway call fail with err
func (g *ScriptedGateway) SetTransportError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transportErr = err
}

// CreatePaymentIntent registers a pending intent
func (g *ScriptedGateway) CreatePaymentIntent(ctx context.Context, req *gateway.CreateIntentRequest) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.CreateCalls++
	if g.transportErr != nil {
		return nil, g.transportErr
	}

	intent := &gateway.PaymentIntent{
		ID:       types.GenerateUUIDWithPrefix("pi"),
		Status:   types.PaymentIntentStatusPending,
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: req.Metadata,
	}
	g.intents[intent.ID] = intent
	g.intentTenants[intent.ID] = req.TenantID
	return intent, nil
}

// ConfirmPayment confirms an intent according to the scripted behavior
func (g *ScriptedGateway) ConfirmPayment(ctx context.Context, intentID string, card *gateway.CardDetails) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ConfirmCalls++
	if g.transportErr != nil {
		return nil, g.transportErr
	}

	intent, ok := g.intents[intentID]
	if !ok {
		intent = &gateway.PaymentIntent{ID: intentID}
		g.intents[intentID] = intent
	}

	if g.declineAll || g.declineTenants[g.intentTenants[intentID]] {
		intent.Status = types.PaymentIntentStatusFailed
		intent.ErrorMessage = "card_declined"
	} else {
		intent.Status = types.PaymentIntentStatusSucceeded
		intent.ErrorMessage = ""
	}
	return intent, nil
}
