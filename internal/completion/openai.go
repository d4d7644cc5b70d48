package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 2048

// OpenAI calls an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	client      *http.Client
	logger      *slog.Logger
}

// NewOpenAI creates an OpenAI client from s. A nil HTTPClient selects
// http.DefaultClient.
func NewOpenAI(s Settings, logger *slog.Logger) *OpenAI {
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		baseURL:     strings.TrimRight(s.BaseURL, "/"),
		apiKey:      s.APIKey,
		model:       s.Model,
		temperature: s.Temperature,
		client:      client,
		logger:      logger.With("component", "completion", "provider", ProviderOpenAI),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Complete sends prompt as a single user message and returns the content of
// the first choice.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: o.temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", o.fail(0, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	o.logger.InfoContext(ctx, "requesting completion", "model", o.model)
	start := time.Now()

	resp, err := o.client.Do(req)
	if err != nil {
		return "", o.fail(0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var errResp errorResponse
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
			return "", o.fail(resp.StatusCode, errResp.Error.Message, nil)
		}
		return "", o.fail(resp.StatusCode, fmt.Sprintf("unexpected status: %s", strings.TrimSpace(string(data))), nil)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", o.fail(resp.StatusCode, "malformed response body", err)
	}
	if len(out.Choices) == 0 {
		return "", o.fail(resp.StatusCode, "response contained no choices", nil)
	}
	content := out.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		o.logger.WarnContext(ctx, "completion message was empty")
	}

	o.logger.InfoContext(ctx, "completion received",
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(content),
	)
	return content, nil
}

func (o *OpenAI) fail(status int, msg string, err error) error {
	return &ServiceError{Provider: ProviderOpenAI, StatusCode: status, Message: msg, Err: err}
}
