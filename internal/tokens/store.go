package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/issuedeck/issuedeck/internal/config"
	"github.com/issuedeck/issuedeck/internal/database"
)

// ExpirySkew is how long before the recorded expiry a token is treated as
// already expired, so a sync never starts with a token about to lapse.
const ExpirySkew = 5 * time.Minute

// Store hands out valid provider credentials for tenant integrations,
// refreshing OAuth bundles through the provider's token endpoint when needed.
type Store struct {
	db         *gorm.DB
	providers  map[database.Provider]config.ProviderConfig
	httpClient *http.Client
}

// NewStore creates a token store
func NewStore(db *gorm.DB, providers map[database.Provider]config.ProviderConfig) *Store {
	return &Store{
		db:        db,
		providers: providers,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetValidToken returns a usable access token for the integration.
// Expired OAuth bundles are refreshed and the stored bundle is overwritten;
// bundles without a refresh token are probed against the provider before
// being declared dead, since some providers report unreliable expiries.
// Refresh failure marks the integration failed and returns an *AuthError.
func (s *Store) GetValidToken(ctx context.Context, integrationID string) (string, error) {
	var integration database.TenantIntegration
	if err := s.db.First(&integration, "id = ?", integrationID).Error; err != nil {
		return "", fmt.Errorf("failed to load integration %s: %w", integrationID, err)
	}

	creds := integration.Credentials
	switch creds.Kind {
	case database.CredentialKindAPIToken:
		if creds.APIToken == nil || creds.APIToken.Token == "" {
			return "", s.fail(&integration, "no API token configured", nil)
		}
		return creds.APIToken.Token, nil

	case database.CredentialKindOAuth:
		if creds.OAuth == nil || creds.OAuth.AccessToken == "" {
			return "", s.fail(&integration, "no access token configured", nil)
		}

		if !creds.ExpiresWithin(ExpirySkew) {
			return creds.OAuth.AccessToken, nil
		}

		if creds.OAuth.RefreshToken != "" {
			return s.refresh(ctx, &integration)
		}

		// No refresh token: the recorded expiry may be wrong, so ask the
		// provider directly before giving up.
		if s.probe(ctx, integration.Provider, creds.OAuth.AccessToken) {
			return creds.OAuth.AccessToken, nil
		}
		return "", s.fail(&integration, "access token expired and no refresh token available", nil)

	default:
		return "", s.fail(&integration, "no credentials configured", nil)
	}
}

// tokenResponse is the OAuth token endpoint response shape
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// refresh exchanges the refresh token for a new bundle and persists it.
// The stored bundle is overwritten in a single update so the old token is
// never returned once the refresh has succeeded.
func (s *Store) refresh(ctx context.Context, integration *database.TenantIntegration) (string, error) {
	pc, ok := s.providers[integration.Provider]
	if !ok || pc.TokenURL == "" {
		return "", s.fail(integration, "token refresh not configured for provider", nil)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", pc.ClientID)
	form.Set("client_secret", pc.ClientSecret)
	form.Set("refresh_token", integration.Credentials.OAuth.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", s.fail(integration, "failed to build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", s.fail(integration, "token refresh request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", s.fail(integration, "failed to read refresh response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", s.fail(integration,
			fmt.Sprintf("token refresh rejected with status %d", resp.StatusCode), nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", s.fail(integration, "invalid refresh response", err)
	}
	if tr.AccessToken == "" {
		return "", s.fail(integration, "refresh response contained no access token", nil)
	}

	newCreds := integration.Credentials
	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	bundle := database.OAuthBundle{
		AccessToken:  tr.AccessToken,
		RefreshToken: integration.Credentials.OAuth.RefreshToken,
		ExpiresAt:    &expiresAt,
	}
	if tr.RefreshToken != "" {
		bundle.RefreshToken = tr.RefreshToken
	}
	newCreds.OAuth = &bundle

	err = s.db.Model(&database.TenantIntegration{}).
		Where("id = ?", integration.ID).
		Update("credentials", newCreds).Error
	if err != nil {
		return "", fmt.Errorf("failed to persist refreshed credentials for integration %s: %w", integration.ID, err)
	}

	integration.Credentials = newCreds
	log.Printf("TokenStore: refreshed credentials for integration %s (%s)", integration.ID, integration.Provider)
	return tr.AccessToken, nil
}

// probe checks whether a token the provider may have mis-expired still works
func (s *Store) probe(ctx context.Context, provider database.Provider, token string) bool {
	pc, ok := s.providers[provider]
	if !ok || pc.ProbeURL == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pc.ProbeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// fail marks the integration failed and returns the AuthError. Only the sync
// status fields are touched so a concurrent credential update is not clobbered.
func (s *Store) fail(integration *database.TenantIntegration, reason string, cause error) error {
	err := s.db.Model(&database.TenantIntegration{}).
		Where("id = ?", integration.ID).
		Updates(map[string]interface{}{
			"last_sync_status": database.SyncStatusFailed,
			"last_error":       reason,
		}).Error
	if err != nil {
		log.Printf("TokenStore: failed to record auth failure for integration %s: %v", integration.ID, err)
	}

	return &AuthError{
		Provider:      integration.Provider,
		IntegrationID: integration.ID,
		Reason:        reason,
		Err:           cause,
	}
}
