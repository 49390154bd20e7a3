package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type HTTPMatcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPMatcher(baseURL string, timeout time.Duration) *HTTPMatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMatcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (m *HTTPMatcher) ResumeOrder(ctx context.Context, orderID uuid.UUID) error {
	return m.post(ctx, "/search/orders:resume", map[string]string{"order_id": orderID.String()})
}

func (m *HTTPMatcher) ResumeGroup(ctx context.Context, groupPlatformID string) error {
	return m.post(ctx, "/search/groups:resume", map[string]string{"group_platform_id": groupPlatformID})
}

func (m *HTTPMatcher) post(ctx context.Context, path string, payload map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("matching service returned %d", resp.StatusCode)
	}
	return nil
}
