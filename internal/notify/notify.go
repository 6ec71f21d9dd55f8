// File: internal/notify/notify.go
// Fire-and-forget status messages to a chat webhook. Delivery failures are
// swallowed; a down webhook must never slow the run down.
package notify

import (
	"bytes"
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/optinreach/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Notifier posts plain-text status messages.
type Notifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// New builds a notifier. An empty webhook URL yields a no-op notifier.
func New(cfg config.NotifyConfig, logger *zap.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("notify"),
	}
}

type payload struct {
	Text string `json:"text"`
}

// Send posts one message. Errors are logged at debug and otherwise ignored.
func (n *Notifier) Send(ctx context.Context, text string) {
	if n.url == "" {
		return
	}
	body, err := json.Marshal(payload{Text: text})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Debug("Notification delivery failed", zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Debug("Notification rejected", zap.Int("status", resp.StatusCode))
	}
}
