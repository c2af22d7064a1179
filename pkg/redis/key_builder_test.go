package redis

import (
	"testing"
)

func TestKeyBuilder_Environment_Prefixes(t *testing.T) {
	tests := []struct {
		name           string
		environment    string
		expectedPrefix string
	}{
		{
			name:           "Production environment should use prod prefix",
			environment:    "production",
			expectedPrefix: "prod",
		},
		{
			name:           "Development environment should use staging prefix",
			environment:    "development",
			expectedPrefix: "staging",
		},
		{
			name:           "Staging environment should use staging prefix",
			environment:    "staging",
			expectedPrefix: "staging",
		},
		{
			name:           "Test environment should use staging prefix",
			environment:    "test",
			expectedPrefix: "staging",
		},
		{
			name:           "Unknown environment should default to prod prefix",
			environment:    "unknown",
			expectedPrefix: "prod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := NewKeyBuilder(tt.environment)
			if kb.GetPrefix() != tt.expectedPrefix {
				t.Errorf("NewKeyBuilder(%s).GetPrefix() = %s, want %s",
					tt.environment, kb.GetPrefix(), tt.expectedPrefix)
			}
		})
	}
}

func TestKeyBuilder_KeyGeneration(t *testing.T) {
	kb := NewKeyBuilder("production")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "VoterVoted key",
			got:      kb.KeyVoterVoted(101, "jane@example.com"),
			expected: "prod:vote:subcategory:101:voter:jane@example.com",
		},
		{
			name:     "DispatchLock key",
			got:      kb.KeyDispatchLock(),
			expected: "prod:outbox:dispatch:lock",
		},
		{
			name:     "Custom key",
			got:      kb.KeyCustom("nomination:%s", "abc"),
			expected: "prod:nomination:abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %s, want %s", tt.got, tt.expected)
			}
		})
	}
}

func TestKeyBuilder_EnvironmentIsolation(t *testing.T) {
	prod := NewKeyBuilder("production")
	staging := NewKeyBuilder("staging")

	prodKey := prod.KeyVoterVoted(101, "jane@example.com")
	stagingKey := staging.KeyVoterVoted(101, "jane@example.com")

	if prodKey == stagingKey {
		t.Errorf("expected environment-isolated keys, both were %s", prodKey)
	}
}
