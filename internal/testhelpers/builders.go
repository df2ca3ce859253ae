// Package testhelpers provides additional data builders for testing
package testhelpers

import (
	"time"

	"github.com/google/uuid"

	"github.com/issuedeck/issuedeck/internal/database"
)

// ========================================
// Integration Builder
// ========================================

// IntegrationBuilder builds TenantIntegration instances for testing
type IntegrationBuilder struct {
	integration database.TenantIntegration
}

// NewIntegrationBuilder creates a new integration builder with defaults:
// an active CRM integration with a plain API token.
func NewIntegrationBuilder() *IntegrationBuilder {
	return &IntegrationBuilder{
		integration: database.TenantIntegration{
			ID:       uuid.NewString(),
			TenantID: "tenant-1",
			Provider: database.ProviderCRMTicket,
			Active:   true,
			Credentials: database.Credentials{
				Kind:     database.CredentialKindAPIToken,
				APIToken: &database.APITokenBundle{Token: "test-token"},
			},
			LastSyncStatus: database.SyncStatusNever,
		},
	}
}

// WithTenant sets the tenant
func (b *IntegrationBuilder) WithTenant(tenantID string) *IntegrationBuilder {
	b.integration.TenantID = tenantID
	return b
}

// WithProvider sets the provider
func (b *IntegrationBuilder) WithProvider(provider database.Provider) *IntegrationBuilder {
	b.integration.Provider = provider
	return b
}

// WithOAuth replaces the credentials with an OAuth bundle
func (b *IntegrationBuilder) WithOAuth(accessToken, refreshToken string, expiresAt *time.Time) *IntegrationBuilder {
	b.integration.Credentials = database.Credentials{
		Kind: database.CredentialKindOAuth,
		OAuth: &database.OAuthBundle{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
		},
	}
	return b
}

// WithExtra sets one credential extra
func (b *IntegrationBuilder) WithExtra(key, value string) *IntegrationBuilder {
	if b.integration.Credentials.Extras == nil {
		b.integration.Credentials.Extras = map[string]string{}
	}
	b.integration.Credentials.Extras[key] = value
	return b
}

// WithWebhookSecret sets the webhook secret
func (b *IntegrationBuilder) WithWebhookSecret(secret string) *IntegrationBuilder {
	b.integration.WebhookSecret = secret
	return b
}

// WithLastSyncedAt sets the last successful sync time
func (b *IntegrationBuilder) WithLastSyncedAt(at time.Time) *IntegrationBuilder {
	b.integration.LastSyncedAt = &at
	return b
}

// Inactive marks the integration disabled
func (b *IntegrationBuilder) Inactive() *IntegrationBuilder {
	b.integration.Active = false
	return b
}

// Build returns the constructed integration
func (b *IntegrationBuilder) Build() database.TenantIntegration {
	return b.integration
}

// ========================================
// Report Builder
// ========================================

// ReportBuilder builds RawReport instances for testing
type ReportBuilder struct {
	report     database.RawReport
	externalID string
}

// NewReportBuilder creates a new report builder with defaults
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{
		report: database.RawReport{
			TenantID: "tenant-1",
			Provider: database.ProviderCRMTicket,
			Title:    "Test report",
			Body:     "Test report body",
		},
	}
}

// WithTenant sets the tenant
func (b *ReportBuilder) WithTenant(tenantID string) *ReportBuilder {
	b.report.TenantID = tenantID
	return b
}

// WithProvider sets the provider
func (b *ReportBuilder) WithProvider(provider database.Provider) *ReportBuilder {
	b.report.Provider = provider
	return b
}

// WithExternalID sets the provider-side id
func (b *ReportBuilder) WithExternalID(id string) *ReportBuilder {
	b.externalID = id
	return b
}

// WithTitle sets the title
func (b *ReportBuilder) WithTitle(title string) *ReportBuilder {
	b.report.Title = title
	return b
}

// WithBody sets the body
func (b *ReportBuilder) WithBody(body string) *ReportBuilder {
	b.report.Body = body
	return b
}

// WithSignature sets the clustering signature
func (b *ReportBuilder) WithSignature(signature string) *ReportBuilder {
	b.report.Signature = signature
	return b
}

// WithCreatedAt pins the creation time, useful for deterministic ordering
func (b *ReportBuilder) WithCreatedAt(at time.Time) *ReportBuilder {
	b.report.CreatedAt = at
	b.report.UpdatedAt = at
	return b
}

// Build returns the constructed report
func (b *ReportBuilder) Build() database.RawReport {
	report := b.report
	if b.externalID != "" {
		id := b.externalID
		report.ExternalID = &id
	}
	return report
}
