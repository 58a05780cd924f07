package gateway

import (
	"strconv"
	"strings"
	"time"

	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/types"
)

// Metadata keys attached to gateway objects for reconciliation
const (
	metaKeyTenantID   = "tenant_id"
	metaKeyPlanTier   = "plan_tier"
	metaKeyUserLimit  = "user_limit"
	metaKeyAddons     = "addons"
	metaKeyCycleStart = "cycle_start"
	metaKeyCycleEnd   = "cycle_end"
	metaKeySource     = "source"

	metaSourceValue    = "opsgrid-billing"
	metaUnlimitedSeats = "unlimited"
)

// SubscriptionMetadata is the structured context attached to every gateway
// object so a charge can be reconciled back to what was purchased.
type SubscriptionMetadata struct {
	TenantID   string
	PlanTier   types.PlanTier
	UserLimit  *int
	Addons     []types.Addon
	CycleStart time.Time
	CycleEnd   time.Time
}

// BuildMetadata flattens subscription purchase context into gateway
// key-value metadata. The inverse is ParseMetadata.
func BuildMetadata(m *SubscriptionMetadata) types.Metadata {
	md := types.Metadata{
		metaKeySource:     metaSourceValue,
		metaKeyTenantID:   m.TenantID,
		metaKeyPlanTier:   m.PlanTier.String(),
		metaKeyCycleStart: m.CycleStart.UTC().Format(time.RFC3339),
		metaKeyCycleEnd:   m.CycleEnd.UTC().Format(time.RFC3339),
	}

	if m.UserLimit != nil {
		md[metaKeyUserLimit] = strconv.Itoa(*m.UserLimit)
	} else {
		md[metaKeyUserLimit] = metaUnlimitedSeats
	}

	if len(m.Addons) > 0 {
		parts := make([]string, len(m.Addons))
		for i, addon := range m.Addons {
			parts[i] = addon.String()
		}
		md[metaKeyAddons] = strings.Join(parts, ",")
	}

	return md
}

// ParseMetadata reconstructs subscription purchase context from gateway
// metadata. It rejects metadata that was not produced by this application.
func ParseMetadata(md types.Metadata) (*SubscriptionMetadata, error) {
	if md[metaKeySource] != metaSourceValue {
		return nil, ierr.NewError("unrecognized gateway metadata").
			WithHint("Payment object was not created by this application").
			WithReportableDetails(map[string]any{"source": md[metaKeySource]}).
			Mark(ierr.ErrValidation)
	}

	tier := types.PlanTier(md[metaKeyPlanTier])
	if err := tier.Validate(); err != nil {
		return nil, err
	}

	out := &SubscriptionMetadata{
		TenantID: md[metaKeyTenantID],
		PlanTier: tier,
	}
	if out.TenantID == "" {
		return nil, ierr.NewError("missing tenant id in gateway metadata").
			WithHint("Payment object is missing tenant context").
			Mark(ierr.ErrValidation)
	}

	if raw := md[metaKeyUserLimit]; raw != "" && raw != metaUnlimitedSeats {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Invalid user limit in gateway metadata").
				Mark(ierr.ErrValidation)
		}
		out.UserLimit = &limit
	}

	if raw := md[metaKeyAddons]; raw != "" {
		for _, part := range strings.Split(raw, ",") {
			addon := types.Addon(strings.TrimSpace(part))
			if err := addon.Validate(); err != nil {
				return nil, err
			}
			out.Addons = append(out.Addons, addon)
		}
	}

	var err error
	out.CycleStart, err = time.Parse(time.RFC3339, md[metaKeyCycleStart])
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid cycle start in gateway metadata").
			Mark(ierr.ErrValidation)
	}
	out.CycleEnd, err = time.Parse(time.RFC3339, md[metaKeyCycleEnd])
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid cycle end in gateway metadata").
			Mark(ierr.ErrValidation)
	}

	return out, nil
}
