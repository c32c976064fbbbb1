package flow

import (
	"context"
	"log/slog"

	"github.com/voicelane/bookline/internal/models"
)

// Resolver loads the booking flow configured for a tenant.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (*models.Flow, error)
}

// UnconfiguredFlow is the fail-closed flow: the engine escalates rather than
// improvising questions for a tenant with no configuration.
func UnconfiguredFlow(tenantID string) *models.Flow {
	return &models.Flow{TenantID: tenantID, Unconfigured: true}
}

// StaticResolver serves flows from a fixed in-memory map. Used by tests and
// single-tenant deployments configured from a file.
type StaticResolver struct {
	flows map[string]*models.Flow
}

// NewStaticResolver validates and indexes the given flows by tenant.
func NewStaticResolver(flows ...*models.Flow) (*StaticResolver, error) {
	indexed := make(map[string]*models.Flow, len(flows))
	for _, f := range flows {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		indexed[f.TenantID] = f
	}
	return &StaticResolver{flows: indexed}, nil
}

// Resolve returns the tenant's flow, or the unconfigured flow when the tenant
// is unknown.
func (r *StaticResolver) Resolve(_ context.Context, tenantID string) (*models.Flow, error) {
	if f, ok := r.flows[tenantID]; ok {
		return f, nil
	}
	slog.Warn("StaticResolver.Resolve: no flow for tenant, failing closed", "tenantID", tenantID)
	return UnconfiguredFlow(tenantID), nil
}
