// Package notify reports pipeline failures to operators.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

// Failure describes a generation request that did not produce a video.
type Failure struct {
	RequestID string
	Question  string
	Code      string
	Err       error
}

type Notifier interface {
	NotifyFailure(ctx context.Context, f Failure) error
}

// SlackNotifier posts failures to a Slack incoming webhook. With no webhook
// URL every call is a logged no-op.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier creates a notifier. A nil httpClient selects
// http.DefaultClient.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger.With("component", "notify"),
	}
}

// Enabled reports whether a webhook is configured.
func (n *SlackNotifier) Enabled() bool {
	return n.webhookURL != ""
}

func (n *SlackNotifier) NotifyFailure(ctx context.Context, f Failure) error {
	if !n.Enabled() {
		n.logger.Debug("slack webhook not configured, skipping failure notification", "request_id", f.RequestID)
		return nil
	}

	msg := &slack.WebhookMessage{Text: failureText(f)}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}

	n.logger.Info("sent failure notification", "request_id", f.RequestID, "code", f.Code)
	return nil
}

// failureText renders f as Slack mrkdwn.
func failureText(f Failure) string {
	var sb strings.Builder
	sb.WriteString(":x: *Animation generation failed*\n")
	fmt.Fprintf(&sb, "*Request:* `%s`\n", f.RequestID)
	fmt.Fprintf(&sb, "*Question:* %s\n", quoteLine(f.Question, 300))
	if f.Code != "" {
		fmt.Fprintf(&sb, "*Code:* `%s`\n", f.Code)
	}
	if f.Err != nil {
		fmt.Fprintf(&sb, "*Error:*\n```\n%s\n```", strings.ReplaceAll(f.Err.Error(), "```", "'''"))
	}
	return sb.String()
}

func quoteLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
