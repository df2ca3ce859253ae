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
	"time"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/tokens"
)

// trackerPageSize is the page size used for issue search requests
const trackerPageSize = 50

// TrackerConnector pulls issues from the issue tracker's search API using
// offset-based paging. The tracker supports server-side filtering by update
// time, so since is pushed into the search query. The tenant's tracker site
// URL lives in the credential bundle extras ("base_url").
type TrackerConnector struct {
	tokens         TokenSource
	defaultBaseURL string
	client         *http.Client
}

// NewTrackerConnector creates an issue tracker connector
func NewTrackerConnector(tokenSource TokenSource, defaultBaseURL string) *TrackerConnector {
	return &TrackerConnector{
		tokens:         tokenSource,
		defaultBaseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Provider returns the provider this connector serves
func (c *TrackerConnector) Provider() database.Provider {
	return database.ProviderIssueTracker
}

// trackerSearchPage is the issue search response shape
type trackerSearchPage struct {
	StartAt    int            `json:"startAt"`
	MaxResults int            `json:"maxResults"`
	Total      int            `json:"total"`
	Issues     []trackerIssue `json:"issues"`
}

type trackerIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Updated     string `json:"updated"`
	} `json:"fields"`
}

// Pull pages through the tenant's issues and returns them as raw items
func (c *TrackerConnector) Pull(ctx context.Context, integration *database.TenantIntegration, since *time.Time) ([]RawItem, error) {
	baseURL := integration.Credentials.Extra("base_url")
	if baseURL == "" {
		baseURL = c.defaultBaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no tracker base URL configured for integration %s", integration.ID)
	}

	token, err := c.tokens.GetValidToken(ctx, integration.ID)
	if err != nil {
		return nil, err
	}

	jql := "ORDER BY updated DESC"
	if since != nil {
		jql = fmt.Sprintf("updated >= %q ORDER BY updated DESC", since.UTC().Format("2006-01-02 15:04"))
	}

	var items []RawItem
	startAt := 0
	skipped := 0

	for {
		page, err := c.fetchPage(ctx, baseURL, token, jql, startAt)
		if err != nil {
			return nil, err
		}

		for _, issue := range page.Issues {
			if issue.Key == "" {
				skipped++
				log.Printf("TrackerConnector: skipping issue without key for integration %s", integration.ID)
				continue
			}
			items = append(items, RawItem{
				ExternalID: issue.Key,
				Title:      issue.Fields.Summary,
				Body:       issue.Fields.Description,
				URL:        baseURL + "/browse/" + issue.Key,
				Metadata: map[string]interface{}{
					"updated": issue.Fields.Updated,
				},
			})
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	if skipped > 0 {
		log.Printf("TrackerConnector: skipped %d malformed issues for integration %s", skipped, integration.ID)
	}
	return items, nil
}

// fetchPage requests one page of the issue search
func (c *TrackerConnector) fetchPage(ctx context.Context, baseURL, token, jql string, startAt int) (*trackerSearchPage, error) {
	params := url.Values{}
	params.Set("jql", jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(trackerPageSize))
	params.Set("fields", "summary,description,updated")

	endpoint := baseURL + "/rest/api/3/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build issue search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Provider: database.ProviderIssueTracker, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Provider: database.ProviderIssueTracker, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &tokens.AuthError{
			Provider: database.ProviderIssueTracker,
			Reason:   fmt.Sprintf("provider rejected access token (status %d)", resp.StatusCode),
		}
	case transientStatus(resp.StatusCode):
		return nil, &TransientError{
			Provider:   database.ProviderIssueTracker,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("issue search request failed"),
		}
	default:
		return nil, fmt.Errorf("issue search request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var page trackerSearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode issue search page: %w", err)
	}
	return &page, nil
}
