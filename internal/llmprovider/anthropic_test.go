package llmprovider

import (
	"errors"
	"testing"
	"time"
)

func TestNewAnthropicProviderDefaults(t *testing.T) {
	tests := []struct {
		name        string
		config      AnthropicConfig
		expectError bool
	}{
		{
			name:   "valid config",
			config: AnthropicConfig{APIKey: "test-key", MaxRetries: 3, RetryDelay: time.Second, DefaultModel: "claude-sonnet-4-20250514"},
		},
		{
			name:        "missing API key",
			config:      AnthropicConfig{MaxRetries: 3},
			expectError: true,
		},
		{
			name:   "defaults applied",
			config: AnthropicConfig{APIKey: "test-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewAnthropicProvider(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider.maxRetries <= 0 {
				t.Error("maxRetries should have a default value")
			}
			if provider.retryDelay <= 0 {
				t.Error("retryDelay should have a default value")
			}
			if provider.defaultModel == "" {
				t.Error("defaultModel should have a default value")
			}
		})
	}
}

func TestAnthropicProviderMethods(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", provider.Name())
	}
	if !provider.SupportsTools() {
		t.Error("expected SupportsTools to be true")
	}
	if len(provider.Models()) == 0 {
		t.Error("expected at least one model")
	}
}

func TestAnthropicProviderGetModelFallsBackToDefault(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", DefaultModel: "claude-opus-4-20250514"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	if got := provider.getModel(""); got != "claude-opus-4-20250514" {
		t.Errorf("expected default model, got %q", got)
	}
	if got := provider.getModel("claude-3-haiku-20240307"); got != "claude-3-haiku-20240307" {
		t.Errorf("expected requested model to be used verbatim, got %q", got)
	}
}

func TestAnthropicProviderGetMaxTokensDefault(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	if got := provider.getMaxTokens(0); got != 4096 {
		t.Errorf("expected default max tokens 4096, got %d", got)
	}
	if got := provider.getMaxTokens(512); got != 512 {
		t.Errorf("expected requested max tokens to be used verbatim, got %d", got)
	}
}

func TestIsRetryableError(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tests := []struct {
		name  string
		err   error
		retry bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("429 rate_limit exceeded"), true},
		{"server error", errors.New("502 bad gateway"), true},
		{"timeout", errors.New("request timeout"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"invalid api key", errors.New("invalid API key"), false},
		{"validation error", errors.New("validation failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := provider.isRetryableError(tt.err); got != tt.retry {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.retry)
			}
		})
	}
}

func TestIsRetryableWithProviderError(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	rateLimitErr := NewProviderError("anthropic", "claude-sonnet-4-20250514", errors.New("rate limit")).WithStatus(429)
	if !provider.isRetryableError(rateLimitErr) {
		t.Error("expected rate-limited ProviderError to be retryable")
	}

	authErr := NewProviderError("anthropic", "claude-sonnet-4-20250514", errors.New("unauthorized")).WithStatus(401)
	if provider.isRetryableError(authErr) {
		t.Error("expected auth ProviderError to not be retryable")
	}
}

func TestCountTokensScalesWithContent(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	short := &CompletionRequest{Messages: []CompletionMessage{{Role: "user", Content: "hi"}}}
	long := &CompletionRequest{Messages: []CompletionMessage{{Role: "user", Content: "this is a considerably longer message body"}}}

	if provider.CountTokens(long) <= provider.CountTokens(short) {
		t.Fatal("expected a longer message to estimate more tokens than a short one")
	}
}

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	converted, err := provider.convertMessages([]CompletionMessage{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("expected system message to be filtered out, got %d messages", len(converted))
	}
}
