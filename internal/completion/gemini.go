package completion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Gemini calls the Gemini API through the GenAI SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewGemini creates a Gemini client. s.BaseURL, when set, overrides the API
// endpoint.
func NewGemini(ctx context.Context, s Settings, logger *slog.Logger) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:     s.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.HTTPClient,
	}
	if s.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, &ConfigurationError{Provider: ProviderGemini, Reason: err.Error()}
	}

	return &Gemini{
		client:      client,
		model:       s.Model,
		temperature: s.Temperature,
		logger:      logger.With("component", "completion", "provider", ProviderGemini),
	}, nil
}

// Complete generates content for prompt and returns the text of the first
// candidate.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	g.logger.InfoContext(ctx, "requesting completion", "model", g.model)
	start := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	})
	if err != nil {
		se := &ServiceError{Provider: ProviderGemini, Message: err.Error(), Err: err}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			se.StatusCode = apiErr.Code
			se.Message = apiErr.Message
		}
		return "", se
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		g.logger.WarnContext(ctx, "completion contained no text")
	}

	g.logger.InfoContext(ctx, "completion received",
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(text),
	)
	return text, nil
}
