// Package completion sends prompts to a remote text-completion service.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Client returns the text of a single-turn completion for prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ConfigurationError reports a client that could not be set up, typically
// because its credential is missing.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s completion client not configured: %s", e.Provider, e.Reason)
}

// ServiceError reports a failed call to the completion service.
type ServiceError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s completion failed: %s", e.Provider, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Unconfigured fails every call with a ConfigurationError.
type Unconfigured struct {
	Provider string
	Reason   string
}

func (u *Unconfigured) Complete(context.Context, string) (string, error) {
	return "", &ConfigurationError{Provider: u.Provider, Reason: u.Reason}
}

// IsConfigured reports whether c can reach a completion service.
func IsConfigured(c Client) bool {
	_, unconfigured := c.(*Unconfigured)
	return c != nil && !unconfigured
}

// Settings selects and configures a provider.
type Settings struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	HTTPClient  *http.Client
}

// New builds the client for s.Provider. A missing credential is not an
// error: it is logged and an Unconfigured client is returned so the process
// can still start.
func New(ctx context.Context, s Settings, logger *slog.Logger) (Client, error) {
	if s.APIKey == "" {
		reason := "missing API key"
		logger.Warn("completion client unconfigured", "provider", s.Provider, "reason", reason)
		return &Unconfigured{Provider: s.Provider, Reason: reason}, nil
	}

	switch s.Provider {
	case ProviderOpenAI:
		return NewOpenAI(s, logger), nil
	case ProviderGemini:
		return NewGemini(ctx, s, logger)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", s.Provider)
	}
}
