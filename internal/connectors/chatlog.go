package connectors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/utils"
)

// chatHistoryPageSize is the page size for channel history requests
const chatHistoryPageSize = 200

// chatTitleMaxLen bounds the synthesized title taken from a message
const chatTitleMaxLen = 200

// ChatLogConnector pulls messages from the team chat's Web API. Messages have
// no stable provider id, so each item carries a synthetic external id built
// from channel and message timestamp. The channels to ingest are configured in
// the credential bundle extras ("channels", comma-separated channel ids).
type ChatLogConnector struct {
	tokens TokenSource
	apiURL string
}

// NewChatLogConnector creates a chat log connector. apiURL overrides the chat
// API base URL, mainly for tests.
func NewChatLogConnector(tokenSource TokenSource, apiURL string) *ChatLogConnector {
	return &ChatLogConnector{
		tokens: tokenSource,
		apiURL: apiURL,
	}
}

// Provider returns the provider this connector serves
func (c *ChatLogConnector) Provider() database.Provider {
	return database.ProviderChatLog
}

// Pull reads the history of every configured channel since the given time
func (c *ChatLogConnector) Pull(ctx context.Context, integration *database.TenantIntegration, since *time.Time) ([]RawItem, error) {
	token, err := c.tokens.GetValidToken(ctx, integration.ID)
	if err != nil {
		return nil, err
	}

	channels := splitChannels(integration.Credentials.Extra("channels"))
	if len(channels) == 0 {
		log.Printf("ChatLogConnector: no channels configured for integration %s", integration.ID)
		return nil, nil
	}

	opts := []slack.Option{}
	if c.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(c.apiURL))
	}
	client := slack.New(token, opts...)

	var items []RawItem
	for _, channel := range channels {
		channelItems, err := c.pullChannel(ctx, client, channel, since)
		if err != nil {
			return nil, err
		}
		items = append(items, channelItems...)
	}
	return items, nil
}

// pullChannel pages through one channel's history
func (c *ChatLogConnector) pullChannel(ctx context.Context, client *slack.Client, channel string, since *time.Time) ([]RawItem, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channel,
		Limit:     chatHistoryPageSize,
	}
	if since != nil {
		params.Oldest = strconv.FormatFloat(float64(since.UnixNano())/1e9, 'f', 6, 64)
	}

	var items []RawItem
	for {
		resp, err := client.GetConversationHistoryContext(ctx, params)
		if err != nil {
			var rateErr *slack.RateLimitedError
			if errors.As(err, &rateErr) {
				return nil, &TransientError{Provider: database.ProviderChatLog, StatusCode: 429, Err: err}
			}
			return nil, &TransientError{Provider: database.ProviderChatLog, Err: err}
		}

		for _, msg := range resp.Messages {
			// Only plain user messages become reports
			if msg.SubType != "" || msg.BotID != "" {
				continue
			}
			text := strings.TrimSpace(msg.Text)
			if text == "" || msg.Timestamp == "" {
				continue
			}

			items = append(items, RawItem{
				// Synthetic stable id: messages have none of their own
				ExternalID: fmt.Sprintf("%s:%s", channel, msg.Timestamp),
				Title:      utils.TruncateText(utils.FirstLine(text), chatTitleMaxLen),
				Body:       text,
				Metadata: map[string]interface{}{
					"channel": channel,
					"user":    msg.User,
					"ts":      msg.Timestamp,
				},
			})
		}

		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}
	return items, nil
}

// splitChannels parses the comma-separated channel list from the extras
func splitChannels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
