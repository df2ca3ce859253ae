package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/utils"
)

// ErrSummarizerUnavailable means no summarizer is configured. Callers fall
// back to deterministic titles instead of failing the recluster.
var ErrSummarizerUnavailable = errors.New("summarizer is not configured")

// Summarizer produces a title and summary for a group of related reports
type Summarizer interface {
	Summarize(ctx context.Context, reports []database.RawReport) (title string, summary string, err error)
}

// summaryBodyMaxLen bounds how much of each report body goes into the prompt
const summaryBodyMaxLen = 500

// AISummarizer generates group titles and summaries using an LLM
type AISummarizer struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
}

// NewAISummarizer creates a new AI summarizer. An empty apiKey yields a
// summarizer that always reports ErrSummarizerUnavailable.
func NewAISummarizer(apiKey, apiURL, model string, timeout time.Duration) *AISummarizer {
	return &AISummarizer{
		apiKey: apiKey,
		apiURL: apiURL,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Anthropic messages API request/response structures
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// summaryPayload is the JSON object the model is asked to return
type summaryPayload struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Summarize asks the model for a short title and summary covering the given
// reports. All failures return an error; the caller decides the fallback.
func (s *AISummarizer) Summarize(ctx context.Context, reports []database.RawReport) (string, string, error) {
	if s.apiKey == "" {
		return "", "", ErrSummarizerUnavailable
	}
	if len(reports) == 0 {
		return "", "", fmt.Errorf("no reports to summarize")
	}

	reqBody := anthropicRequest{
		Model:     s.model,
		MaxTokens: 300,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildSummaryPrompt(reports)},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal summarizer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", "", fmt.Errorf("failed to create summarizer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("summarizer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read summarizer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("summarizer returned status %d: %s", resp.StatusCode, utils.TruncateText(string(body), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", "", fmt.Errorf("failed to decode summarizer response: %w", err)
	}
	if apiResp.Error != nil {
		return "", "", fmt.Errorf("summarizer error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", "", fmt.Errorf("summarizer returned empty content")
	}

	var payload summaryPayload
	text := strings.TrimSpace(apiResp.Content[0].Text)
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return "", "", fmt.Errorf("summarizer returned unparseable payload: %w", err)
	}
	if payload.Title == "" {
		return "", "", fmt.Errorf("summarizer returned empty title")
	}
	return payload.Title, payload.Summary, nil
}

// buildSummaryPrompt renders the reports into the summarization prompt
func buildSummaryPrompt(reports []database.RawReport) string {
	var sb strings.Builder
	sb.WriteString("The following customer support reports describe the same underlying issue.\n")
	sb.WriteString("Write a concise title (max 80 characters) and a 1-2 sentence summary of the issue.\n")
	sb.WriteString("Only use information present in the reports. Do not invent details.\n")
	sb.WriteString(`Respond with ONLY a JSON object: {"title": "...", "summary": "..."}` + "\n\n")

	for i, report := range reports {
		sb.WriteString(fmt.Sprintf("Report %d [%s]: %s\n", i+1, report.Provider, report.Title))
		if body := strings.TrimSpace(report.Body); body != "" {
			sb.WriteString(utils.TruncateText(body, summaryBodyMaxLen))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
