package meetings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type HTTPRooms struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRooms(baseURL string, timeout time.Duration) *HTTPRooms {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRooms{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRooms) Release(ctx context.Context, appointmentID uuid.UUID) error {
	body, err := json.Marshal(map[string]string{"appointment_id": appointmentID.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rooms:release", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("meetings service returned %d", resp.StatusCode)
	}
	return nil
}
