package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"terplink/backend/internal/domain"
)

// HTTPCollaborator talks to the payment service over JSON/HTTP.
type HTTPCollaborator struct {
	baseURL string
	client  *http.Client
}

func NewHTTPCollaborator(baseURL string, timeout time.Duration) *HTTPCollaborator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPCollaborator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type appointmentRef struct {
	AppointmentID string  `json:"appointment_id"`
	ClientID      string  `json:"client_id"`
	CompanyID     string  `json:"company_id,omitempty"`
	InterpreterID *string `json:"interpreter_id,omitempty"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
}

func toRef(a domain.Appointment) appointmentRef {
	return appointmentRef{
		AppointmentID: a.ID.String(),
		ClientID:      a.ClientID,
		CompanyID:     a.CompanyID,
		InterpreterID: a.InterpreterID,
		StartTime:     a.ScheduledStartTime.UTC().Format(time.RFC3339),
		EndTime:       a.ScheduledEndTime.UTC().Format(time.RFC3339),
	}
}

type authorizationResponse struct {
	Outcome Outcome `json:"outcome"`
}

func (c *HTTPCollaborator) AuthorizeOnAccept(ctx context.Context, appt domain.Appointment) (Outcome, error) {
	return c.authorize(ctx, "/authorizations:accept", map[string]any{
		"appointment": toRef(appt),
	})
}

func (c *HTTPCollaborator) AuthorizeIfRecreated(ctx context.Context, newAppt, oldAppt domain.Appointment) (Outcome, error) {
	return c.authorize(ctx, "/authorizations:recreated", map[string]any{
		"new_appointment": toRef(newAppt),
		"old_appointment": toRef(oldAppt),
	})
}

func (c *HTTPCollaborator) CancelAuthorization(ctx context.Context, appt domain.Appointment, cancelledByClient bool) error {
	_, err := c.post(ctx, "/authorizations:cancel", map[string]any{
		"appointment":         toRef(appt),
		"cancelled_by_client": cancelledByClient,
	})
	return err
}

func (c *HTTPCollaborator) CancelAuthorizationForGroup(ctx context.Context, appts []domain.Appointment) error {
	refs := make([]appointmentRef, 0, len(appts))
	for _, a := range appts {
		refs = append(refs, toRef(a))
	}
	_, err := c.post(ctx, "/authorizations:cancel-group", map[string]any{
		"appointments": refs,
	})
	return err
}

func (c *HTTPCollaborator) authorize(ctx context.Context, path string, payload map[string]any) (Outcome, error) {
	body, err := c.post(ctx, path, payload)
	if err != nil {
		return "", err
	}
	var parsed authorizationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode authorization response: %w", err)
	}
	switch parsed.Outcome {
	case OutcomeAuthorizationSuccess, OutcomeAuthorizationFailed,
		OutcomeRedirectedToWaitList, OutcomePayInReattached, OutcomePayInNotChanged:
		return parsed.Outcome, nil
	}
	return "", fmt.Errorf("unknown authorization outcome %q", parsed.Outcome)
}

func (c *HTTPCollaborator) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payment service returned %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
