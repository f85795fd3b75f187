package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
)

// WebhookNotifier posts notification payloads to a configured endpoint.
// Without a URL it degrades to logging, keeping non-production environments
// free of outbound calls.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier constructs the notifier from platform config.
func NewWebhookNotifier(cfg config.PlatformConfig, logger *zap.Logger) *WebhookNotifier {
	timeout := time.Duration(cfg.NotifyTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, recipient, content string) error {
	if strings.TrimSpace(n.url) == "" {
		n.logger.Debug("notify (no webhook configured)",
			zap.String("recipient", recipient),
			zap.String("content", content))
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"content":   content,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LoggingChannelManager stands in for the chat-platform channel API, which
// is out of scope here. It fabricates channel refs and logs every call.
type LoggingChannelManager struct {
	logger *zap.Logger
}

// NewLoggingChannelManager constructs the manager.
func NewLoggingChannelManager(logger *zap.Logger) *LoggingChannelManager {
	return &LoggingChannelManager{logger: logger}
}

// Provision implements ChannelManager.
func (m *LoggingChannelManager) Provision(ctx context.Context, tenantID, ticketID string) (string, error) {
	ref := "chan-" + uuid.NewString()[:8]
	m.logger.Debug("provision channel",
		zap.String("tenant_id", tenantID),
		zap.String("ticket_id", ticketID),
		zap.String("channel_ref", ref))
	return ref, nil
}

// Lock implements ChannelManager.
func (m *LoggingChannelManager) Lock(ctx context.Context, channelRef string) error {
	m.logger.Debug("lock channel", zap.String("channel_ref", channelRef))
	return nil
}

// Rename implements ChannelManager.
func (m *LoggingChannelManager) Rename(ctx context.Context, channelRef, name string) error {
	m.logger.Debug("rename channel",
		zap.String("channel_ref", channelRef),
		zap.String("name", name))
	return nil
}

// Delete implements ChannelManager.
func (m *LoggingChannelManager) Delete(ctx context.Context, channelRef string) error {
	m.logger.Debug("delete channel", zap.String("channel_ref", channelRef))
	return nil
}

// NoopSummarizer is the default summarizer backend: it produces no summary,
// so closing degrades gracefully to "no topic row" until a generative
// backend is plugged in.
type NoopSummarizer struct{}

// Summarize implements Summarizer.
func (NoopSummarizer) Summarize(ctx context.Context, channelRef string) (string, error) {
	return "", nil
}
