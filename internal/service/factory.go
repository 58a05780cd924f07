package service

import (
	"github.com/opsgrid/opsgrid/internal/config"
	"github.com/opsgrid/opsgrid/internal/domain/feature"
	"github.com/opsgrid/opsgrid/internal/domain/payment"
	"github.com/opsgrid/opsgrid/internal/domain/planchange"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	"github.com/opsgrid/opsgrid/internal/domain/tenant"
	"github.com/opsgrid/opsgrid/internal/gateway"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/notifier"
	"github.com/opsgrid/opsgrid/internal/postgres"
	"github.com/opsgrid/opsgrid/internal/pricing"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	SubRepo        subscription.Repository
	PaymentRepo    payment.Repository
	FailureRepo    payment.FailureRepository
	PlanChangeRepo planchange.Repository
	TenantRepo     tenant.Repository
	FeatureFlags   feature.FlagStore

	// External capabilities
	Gateway  gateway.Gateway
	Notifier notifier.Notifier

	// Pricing
	PriceCalc *pricing.Calculator
}

// NewServiceParams bundles the common service dependencies
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	subRepo subscription.Repository,
	paymentRepo payment.Repository,
	failureRepo payment.FailureRepository,
	planChangeRepo planchange.Repository,
	tenantRepo tenant.Repository,
	featureFlags feature.FlagStore,
	gw gateway.Gateway,
	n notifier.Notifier,
	priceCalc *pricing.Calculator,
) ServiceParams {
	return ServiceParams{
		Logger:         logger,
		Config:         config,
		DB:             db,
		SubRepo:        subRepo,
		PaymentRepo:    paymentRepo,
		FailureRepo:    failureRepo,
		PlanChangeRepo: planChangeRepo,
		TenantRepo:     tenantRepo,
		FeatureFlags:   featureFlags,
		Gateway:        gw,
		Notifier:       n,
		PriceCalc:      priceCalc,
	}
}
