package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Notifier delivers a single notification to a downstream consumer.
type Notifier interface {
	Notify(ctx context.Context, settlementID string, version int64, status, details string) error
}

// HTTPNotifier posts notifications to a configured webhook URL.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, client *http.Client) *HTTPNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPNotifier{url: url, client: client}
}

type notificationPayload struct {
	DeliveryID   string `json:"deliveryId"`
	SettlementID string `json:"settlementId"`
	Version      int64  `json:"version"`
	Status       string `json:"status"`
	Details      string `json:"details"`
}

// Notify delivers one notification, tagging it with a fresh delivery ID
// so the downstream consumer can deduplicate retried deliveries on its
// own side too.
func (n *HTTPNotifier) Notify(ctx context.Context, settlementID string, version int64, status, details string) error {
	deliveryID := uuid.NewString()
	body, err := json.Marshal(notificationPayload{
		DeliveryID: deliveryID, SettlementID: settlementID, Version: version, Status: status, Details: details,
	})
	if err != nil {
		return fmt.Errorf("marshaling notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", deliveryID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
