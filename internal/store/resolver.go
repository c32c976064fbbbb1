package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voicelane/bookline/internal/flow"
	"github.com/voicelane/bookline/internal/models"
)

var _ flow.Resolver = (*ConfigResolver)(nil)

// ConfigResolver resolves tenant flows from stored tenant configuration.
// Unknown tenants get the unconfigured flow so the engine escalates instead
// of guessing at questions.
type ConfigResolver struct {
	store Store
}

// NewConfigResolver creates a resolver backed by the given store.
func NewConfigResolver(s Store) *ConfigResolver {
	return &ConfigResolver{store: s}
}

func (r *ConfigResolver) Resolve(_ context.Context, tenantID string) (*models.Flow, error) {
	cfg, err := r.store.GetTenantConfig(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant config for %s: %w", tenantID, err)
	}
	if cfg == nil {
		slog.Warn("ConfigResolver.Resolve: no config for tenant, failing closed", "tenantID", tenantID)
		return flow.UnconfiguredFlow(tenantID), nil
	}
	f := cfg.Flow
	return &f, nil
}

// StopWords returns the tenant's extra stop words, or nil when the tenant has
// no stored configuration.
func (r *ConfigResolver) StopWords(tenantID string) ([]string, error) {
	cfg, err := r.store.GetTenantConfig(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant config for %s: %w", tenantID, err)
	}
	if cfg == nil {
		return nil, nil
	}
	return cfg.ExtraStopWords, nil
}
