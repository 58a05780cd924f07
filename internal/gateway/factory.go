package gateway

import (
	"github.com/opsgrid/opsgrid/internal/config"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/types"
)

// NewGateway returns the configured payment gateway implementation
func NewGateway(cfg *config.Configuration, log *logger.Logger) (Gateway, error) {
	switch cfg.Gateway.Provider {
	case types.GatewayProviderStripe:
		return NewStripeGateway(cfg, log)
	case types.GatewayProviderFake:
		log.Warnw("using fake payment gateway; all charges will succeed")
		return NewFakeGateway(), nil
	default:
		return nil, ierr.NewError("unknown payment gateway provider").
			WithHint("Supported gateway providers are stripe and fake").
			WithReportableDetails(map[string]any{"provider": cfg.Gateway.Provider}).
			Mark(ierr.ErrValidation)
	}
}
