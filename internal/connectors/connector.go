package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/issuedeck/issuedeck/internal/database"
)

// RawItem is the provider-agnostic shape of one pulled report
type RawItem struct {
	ExternalID string
	Title      string
	Body       string
	URL        string
	Metadata   map[string]interface{}
}

// TokenSource supplies valid access tokens for integrations
type TokenSource interface {
	GetValidToken(ctx context.Context, integrationID string) (string, error)
}

// Connector pulls raw items from one external provider.
// Transient provider failures (rate limits, 5xx, network) are returned as
// *TransientError and never retried in-process; the next scheduled tick is
// the retry. Malformed items are skipped, not fatal.
type Connector interface {
	// Provider returns the provider this connector serves
	Provider() database.Provider

	// Pull returns all items changed since the given time (all items when
	// since is nil)
	Pull(ctx context.Context, integration *database.TenantIntegration, since *time.Time) ([]RawItem, error)
}

// Registry maps providers to their connectors
type Registry struct {
	connectors map[database.Provider]Connector
}

// NewRegistry creates a registry from the given connectors
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[database.Provider]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Provider()] = c
	}
	return r
}

// Register adds or replaces the connector for its provider
func (r *Registry) Register(c Connector) {
	r.connectors[c.Provider()] = c
}

// Get returns the connector for a provider
func (r *Registry) Get(provider database.Provider) (Connector, error) {
	c, ok := r.connectors[provider]
	if !ok {
		return nil, fmt.Errorf("no connector registered for provider %s", provider)
	}
	return c, nil
}

// Providers returns the providers with a registered connector
func (r *Registry) Providers() []database.Provider {
	out := make([]database.Provider, 0, len(r.connectors))
	for p := range r.connectors {
		out = append(out, p)
	}
	return out
}
