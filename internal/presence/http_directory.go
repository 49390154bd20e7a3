package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) SetOffline(ctx context.Context, interpreterID string) error {
	body, err := json.Marshal(map[string]string{"interpreter_id": interpreterID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/interpreters:offline", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("presence service returned %d", resp.StatusCode)
	}
	return nil
}
