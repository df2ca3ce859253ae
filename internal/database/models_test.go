package database

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJSONB_Scan(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		wantErr bool
	}{
		{"nil value", nil, false},
		{"valid json", []byte(`{"key": "value"}`), false},
		{"invalid json", []byte(`{broken`), true},
		{"wrong type", "not bytes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSONB
			err := j.Scan(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Scan() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input   string
		want    Provider
		wantErr bool
	}{
		{"crm_ticket", ProviderCRMTicket, false},
		{"issue_tracker", ProviderIssueTracker, false},
		{"chat_log", ProviderChatLog, false},
		{"carrier_pigeon", "", true},
		{"", "", true},
		{"CRM_TICKET", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProvider(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseProvider(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCredentialsRoundtrip(t *testing.T) {
	expires := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	original := Credentials{
		Kind: CredentialKindOAuth,
		OAuth: &OAuthBundle{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			ExpiresAt:    &expires,
		},
		Extras: map[string]string{"base_url": "https://tracker.example.com"},
	}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}

	var restored Credentials
	if err := restored.Scan(value.([]byte)); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	if restored.Kind != CredentialKindOAuth {
		t.Errorf("Kind = %q, want oauth", restored.Kind)
	}
	if restored.OAuth == nil || restored.OAuth.AccessToken != "access-123" {
		t.Errorf("OAuth bundle lost: %+v", restored.OAuth)
	}
	if restored.OAuth.ExpiresAt == nil || !restored.OAuth.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", restored.OAuth.ExpiresAt, expires)
	}
	if restored.Extra("base_url") != "https://tracker.example.com" {
		t.Errorf("Extra(base_url) = %q", restored.Extra("base_url"))
	}
}

func TestCredentialsScanNil(t *testing.T) {
	c := Credentials{Kind: CredentialKindAPIToken, APIToken: &APITokenBundle{Token: "old"}}
	if err := c.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if c.Kind != "" || c.APIToken != nil {
		t.Errorf("expected zeroed credentials, got %+v", c)
	}
}

func TestCredentialsToken(t *testing.T) {
	tests := []struct {
		name string
		c    Credentials
		want string
	}{
		{"api token", Credentials{Kind: CredentialKindAPIToken, APIToken: &APITokenBundle{Token: "tok"}}, "tok"},
		{"oauth", Credentials{Kind: CredentialKindOAuth, OAuth: &OAuthBundle{AccessToken: "acc"}}, "acc"},
		{"oauth without bundle", Credentials{Kind: CredentialKindOAuth}, ""},
		{"empty", Credentials{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Token(); got != tt.want {
				t.Errorf("Token() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCredentialsExpiresWithin(t *testing.T) {
	soon := time.Now().Add(2 * time.Minute)
	later := time.Now().Add(2 * time.Hour)

	tests := []struct {
		name string
		c    Credentials
		want bool
	}{
		{"expiring soon", Credentials{Kind: CredentialKindOAuth, OAuth: &OAuthBundle{ExpiresAt: &soon}}, true},
		{"expiring later", Credentials{Kind: CredentialKindOAuth, OAuth: &OAuthBundle{ExpiresAt: &later}}, false},
		{"no recorded expiry", Credentials{Kind: CredentialKindOAuth, OAuth: &OAuthBundle{}}, false},
		{"api token never expires", Credentials{Kind: CredentialKindAPIToken, APIToken: &APITokenBundle{Token: "t"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.ExpiresWithin(5 * time.Minute); got != tt.want {
				t.Errorf("ExpiresWithin(5m) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSourceRollupRoundtrip(t *testing.T) {
	rollup := SourceRollup{
		{Provider: ProviderCRMTicket, Count: 3},
		{Provider: ProviderChatLog, Count: 1},
	}

	value, err := rollup.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}

	var restored SourceRollup
	if err := restored.Scan(value.([]byte)); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if len(restored) != 2 || restored[0].Provider != ProviderCRMTicket || restored[0].Count != 3 {
		t.Errorf("roundtrip lost data: %+v", restored)
	}
}

func TestSourceRollupNilValueIsEmptyArray(t *testing.T) {
	var rollup SourceRollup
	value, err := rollup.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if string(value.([]byte)) != "[]" {
		t.Errorf("nil rollup serialized as %s, want []", value)
	}
}

func TestCredentialsJSONOmitsUnsetVariant(t *testing.T) {
	c := Credentials{Kind: CredentialKindAPIToken, APIToken: &APITokenBundle{Token: "tok"}}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, present := m["oauth"]; present {
		t.Error("oauth variant should be omitted when unset")
	}
}
