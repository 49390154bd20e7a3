package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPNotifier posts notification commands to the delivery service.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type notificationPayload struct {
	Kind            string `json:"kind"`
	RecipientID     string `json:"recipient_id"`
	OrderID         string `json:"order_id,omitempty"`
	AppointmentID   string `json:"appointment_id,omitempty"`
	GroupPlatformID string `json:"group_platform_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func (n *HTTPNotifier) SendSingleOrder(ctx context.Context, interpreterID string, orderID uuid.UUID) error {
	return n.post(ctx, notificationPayload{
		Kind:        "single",
		RecipientID: interpreterID,
		OrderID:     orderID.String(),
	})
}

func (n *HTTPNotifier) SendGroupOrder(ctx context.Context, interpreterID string, groupPlatformID string) error {
	return n.post(ctx, notificationPayload{
		Kind:            "group",
		RecipientID:     interpreterID,
		GroupPlatformID: groupPlatformID,
	})
}

func (n *HTTPNotifier) SendAccepted(ctx context.Context, clientID string, appointmentID uuid.UUID) error {
	return n.post(ctx, notificationPayload{
		Kind:          "accepted",
		RecipientID:   clientID,
		AppointmentID: appointmentID.String(),
	})
}

func (n *HTTPNotifier) SendRepeat(ctx context.Context, interpreterID string, orderID uuid.UUID) error {
	return n.post(ctx, notificationPayload{
		Kind:        "repeat",
		RecipientID: interpreterID,
		OrderID:     orderID.String(),
	})
}

func (n *HTTPNotifier) SendCancelled(ctx context.Context, recipientID string, appointmentID uuid.UUID, reason string) error {
	return n.post(ctx, notificationPayload{
		Kind:          "cancelled",
		RecipientID:   recipientID,
		AppointmentID: appointmentID.String(),
		Reason:        reason,
	})
}

func (n *HTTPNotifier) post(ctx context.Context, payload notificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/notifications", bytes.NewReader(body))
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
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
