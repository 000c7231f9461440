package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"giftcard-ledger/internal/service"
)

// WebhookNotifier posts a JSON notification to the merchant's endpoint after
// a charge commits. Strictly fire-and-forget: every failure is logged and
// dropped, because notification must never affect a committed charge.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ service.CommitNotifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (n *WebhookNotifier) NotifyCommitted(notification service.CommitNotification) {
	if err := n.send(notification); err != nil {
		n.logger.Warn("Commit notification failed",
			"transaction_id", notification.TransactionID,
			"error", err)
		return
	}

	n.logger.Info("Commit notification delivered", "transaction_id", notification.TransactionID)
}

func (n *WebhookNotifier) send(notification service.CommitNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "giftcard-ledger/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
