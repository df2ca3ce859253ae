package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/tokens"
)

// crmPageSize is the maximum page size the CRM ticket API allows
const crmPageSize = 100

// crmTicketProperties are the ticket fields requested from the CRM API
var crmTicketProperties = []string{
	"subject",
	"content",
	"hs_lastmodifieddate",
	"hs_pipeline_stage",
	"hs_ticket_priority",
}

// CRMTicketConnector pulls support tickets from the CRM's v3 objects API
// using cursor-based paging. The API has no server-side since filter on the
// list endpoint, so filtering happens client-side on the last-modified
// property.
type CRMTicketConnector struct {
	tokens  TokenSource
	baseURL string
	client  *http.Client
}

// NewCRMTicketConnector creates a CRM ticket connector
func NewCRMTicketConnector(tokenSource TokenSource, baseURL string) *CRMTicketConnector {
	return &CRMTicketConnector{
		tokens:  tokenSource,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Provider returns the provider this connector serves
func (c *CRMTicketConnector) Provider() database.Provider {
	return database.ProviderCRMTicket
}

// crmTicketPage is the CRM list endpoint response shape
type crmTicketPage struct {
	Results []crmTicket `json:"results"`
	Paging  *struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

type crmTicket struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Pull pages through the tenant's tickets and returns them as raw items
func (c *CRMTicketConnector) Pull(ctx context.Context, integration *database.TenantIntegration, since *time.Time) ([]RawItem, error) {
	token, err := c.tokens.GetValidToken(ctx, integration.ID)
	if err != nil {
		return nil, err
	}

	var items []RawItem
	after := ""
	skipped := 0

	for {
		page, err := c.fetchPage(ctx, token, after)
		if err != nil {
			return nil, err
		}

		for _, ticket := range page.Results {
			item, err := c.toRawItem(ticket, since)
			if err != nil {
				// Malformed item: skip it, keep the page
				skipped++
				log.Printf("CRMTicketConnector: skipping item for integration %s: %v", integration.ID, err)
				continue
			}
			if item != nil {
				items = append(items, *item)
			}
		}

		if page.Paging == nil || page.Paging.Next.After == "" {
			break
		}
		after = page.Paging.Next.After
	}

	if skipped > 0 {
		log.Printf("CRMTicketConnector: skipped %d malformed tickets for integration %s", skipped, integration.ID)
	}
	return items, nil
}

// fetchPage requests one page of tickets
func (c *CRMTicketConnector) fetchPage(ctx context.Context, token, after string) (*crmTicketPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(crmPageSize))
	params.Set("properties", strings.Join(crmTicketProperties, ","))
	if after != "" {
		params.Set("after", after)
	}

	endpoint := c.baseURL + "/crm/v3/objects/tickets?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ticket request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Provider: database.ProviderCRMTicket, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Provider: database.ProviderCRMTicket, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &tokens.AuthError{
			Provider: database.ProviderCRMTicket,
			Reason:   fmt.Sprintf("provider rejected access token (status %d)", resp.StatusCode),
		}
	case transientStatus(resp.StatusCode):
		return nil, &TransientError{
			Provider:   database.ProviderCRMTicket,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("ticket list request failed"),
		}
	default:
		return nil, fmt.Errorf("ticket list request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var page crmTicketPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode ticket page: %w", err)
	}
	return &page, nil
}

// toRawItem converts one ticket, returning nil when it predates since
func (c *CRMTicketConnector) toRawItem(ticket crmTicket, since *time.Time) (*RawItem, error) {
	if ticket.ID == "" {
		return nil, &DataError{Provider: database.ProviderCRMTicket, Reason: "ticket without id"}
	}

	props := ticket.Properties
	if props == nil {
		props = map[string]string{}
	}

	if since != nil {
		if raw := props["hs_lastmodifieddate"]; raw != "" {
			if modified, err := time.Parse(time.RFC3339, raw); err == nil && modified.Before(*since) {
				return nil, nil
			}
		}
	}

	title := props["subject"]
	if title == "" {
		title = "Ticket " + ticket.ID
	}

	metadata := make(map[string]interface{}, len(props))
	for k, v := range props {
		metadata[k] = v
	}

	return &RawItem{
		ExternalID: ticket.ID,
		Title:      title,
		Body:       props["content"],
		Metadata:   metadata,
	}, nil
}
