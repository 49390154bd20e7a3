package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"terplink/backend/internal/domain"
	"terplink/backend/internal/service/appointments"
	"terplink/backend/internal/service/cancellation"
	"terplink/backend/internal/service/orders"
	"terplink/backend/internal/store"
)

type fakeOrderCommands struct {
	acceptFn func(ctx context.Context, orderID uuid.UUID, interpreterID string, ignoreConflicts bool) error
	rejectFn func(ctx context.Context, orderID uuid.UUID, interpreterID string) error
}

func (f *fakeOrderCommands) Accept(ctx context.Context, orderID uuid.UUID, interpreterID string, ignoreConflicts bool) error {
	if f.acceptFn == nil {
		panic("Accept not configured")
	}
	return f.acceptFn(ctx, orderID, interpreterID, ignoreConflicts)
}

func (f *fakeOrderCommands) AcceptGroup(ctx context.Context, groupID uuid.UUID, interpreterID string, ignoreConflicts bool) error {
	panic("AcceptGroup not configured")
}

func (f *fakeOrderCommands) RejectOrder(ctx context.Context, orderID uuid.UUID, interpreterID string) error {
	if f.rejectFn == nil {
		panic("RejectOrder not configured")
	}
	return f.rejectFn(ctx, orderID, interpreterID)
}

func (f *fakeOrderCommands) RejectGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error {
	panic("RejectGroup not configured")
}

func (f *fakeOrderCommands) RefuseOrder(ctx context.Context, orderID uuid.UUID, interpreterID string) error {
	panic("RefuseOrder not configured")
}

func (f *fakeOrderCommands) RefuseGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error {
	panic("RefuseGroup not configured")
}

func (f *fakeOrderCommands) AddInterpreter(ctx context.Context, orderID uuid.UUID, interpreterID string) error {
	panic("AddInterpreter not configured")
}

func (f *fakeOrderCommands) AddInterpreterToGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error {
	panic("AddInterpreterToGroup not configured")
}

func (f *fakeOrderCommands) RepeatNotification(ctx context.Context, orderID uuid.UUID) error {
	panic("RepeatNotification not configured")
}

func (f *fakeOrderCommands) RepeatGroupNotification(ctx context.Context, groupID uuid.UUID) error {
	panic("RepeatGroupNotification not configured")
}

type fakeAppointmentService struct {
	getFn  func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	editFn func(ctx context.Context, id uuid.UUID, in appointments.EditInput) (domain.Appointment, error)
}

func (f *fakeAppointmentService) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeAppointmentService) Edit(ctx context.Context, id uuid.UUID, in appointments.EditInput) (domain.Appointment, error) {
	if f.editFn == nil {
		panic("Edit not configured")
	}
	return f.editFn(ctx, id, in)
}

type fakeCancellationService struct {
	cancelFn      func(ctx context.Context, req cancellation.Request) error
	cancelGroupFn func(ctx context.Context, groupPlatformID string, actor cancellation.Actor, reason string) error
}

func (f *fakeCancellationService) CancelAppointment(ctx context.Context, req cancellation.Request) error {
	if f.cancelFn == nil {
		panic("CancelAppointment not configured")
	}
	return f.cancelFn(ctx, req)
}

func (f *fakeCancellationService) CancelGroupAppointments(ctx context.Context, groupPlatformID string, actor cancellation.Actor, reason string) error {
	if f.cancelGroupFn == nil {
		panic("CancelGroupAppointments not configured")
	}
	return f.cancelGroupFn(ctx, groupPlatformID, actor, reason)
}

func newTestRouter(commands OrderCommands, appts AppointmentService, cancel CancellationService) http.Handler {
	return NewRouter(RouterDeps{
		Orders:       NewOrderHandlers(commands),
		Appointments: NewAppointmentHandlers(appts, cancel),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var payload errorPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload
}

func TestAcceptOrderOK(t *testing.T) {
	orderID := uuid.MustParse("00000000-0000-0000-0000-000000000901")

	commands := &fakeOrderCommands{
		acceptFn: func(ctx context.Context, id uuid.UUID, interpreterID string, ignoreConflicts bool) error {
			if id != orderID {
				t.Fatalf("order = %s, want %s", id, orderID)
			}
			if interpreterID != "i1" {
				t.Fatalf("interpreter = %q, want i1", interpreterID)
			}
			if !ignoreConflicts {
				t.Fatalf("ignore_conflicts not forwarded")
			}
			return nil
		},
	}

	h := newTestRouter(commands, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/orders/"+orderID.String()+"/accept",
		`{"interpreter_id":"i1","ignore_conflicts":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestAcceptOrderConflictBlocked(t *testing.T) {
	orderID := uuid.MustParse("00000000-0000-0000-0000-000000000902")
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	conflicting := domain.Appointment{
		ID:                 uuid.MustParse("00000000-0000-0000-0000-000000000903"),
		ScheduledStartTime: start,
		ScheduledEndTime:   start.Add(time.Hour),
	}

	commands := &fakeOrderCommands{
		acceptFn: func(ctx context.Context, id uuid.UUID, interpreterID string, ignoreConflicts bool) error {
			return &orders.ConflictBlockedError{Conflicts: domain.ConflictSet{
				Singles:       []domain.Appointment{conflicting},
				WholeGroupIDs: []string{"GRP-40"},
			}}
		},
	}

	h := newTestRouter(commands, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/orders/"+orderID.String()+"/accept",
		`{"interpreter_id":"i1"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusConflict)
	}

	payload := decodeError(t, rr)
	if payload.Error != "conflict_blocked" {
		t.Fatalf("error = %q, want conflict_blocked", payload.Error)
	}
	if payload.Conflicts == nil {
		t.Fatalf("conflict payload missing")
	}
	if len(payload.Conflicts.Appointments) != 1 {
		t.Fatalf("conflicting appointments = %d, want 1", len(payload.Conflicts.Appointments))
	}
	if got := payload.Conflicts.Appointments[0].ID; got != conflicting.ID.String() {
		t.Fatalf("conflict id = %s, want %s", got, conflicting.ID)
	}
	if len(payload.Conflicts.GroupIDs) != 1 || payload.Conflicts.GroupIDs[0] != "GRP-40" {
		t.Fatalf("group ids = %v, want [GRP-40]", payload.Conflicts.GroupIDs)
	}
}

func TestAcceptOrderPaymentDeclined(t *testing.T) {
	orderID := uuid.MustParse("00000000-0000-0000-0000-000000000904")

	commands := &fakeOrderCommands{
		acceptFn: func(ctx context.Context, id uuid.UUID, interpreterID string, ignoreConflicts bool) error {
			return orders.ErrPaymentDeclined
		},
	}

	h := newTestRouter(commands, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/orders/"+orderID.String()+"/accept",
		`{"interpreter_id":"i1"}`)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusPaymentRequired)
	}
	if payload := decodeError(t, rr); payload.Error != "payment_declined" {
		t.Fatalf("error = %q, want payment_declined", payload.Error)
	}
}

func TestAcceptOrderLostRaceNotFound(t *testing.T) {
	orderID := uuid.MustParse("00000000-0000-0000-0000-000000000905")

	commands := &fakeOrderCommands{
		acceptFn: func(ctx context.Context, id uuid.UUID, interpreterID string, ignoreConflicts bool) error {
			return store.ErrNotFound
		},
	}

	h := newTestRouter(commands, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/orders/"+orderID.String()+"/accept",
		`{"interpreter_id":"i1"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestAcceptOrderRequiresInterpreterID(t *testing.T) {
	orderID := uuid.MustParse("00000000-0000-0000-0000-000000000906")

	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/orders/"+orderID.String()+"/accept",
		`{"interpreter_id":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAcceptOrderRejectsBadUUID(t *testing.T) {
	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost, "/api/v1/orders/not-a-uuid/accept", `{"interpreter_id":"i1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRejectOrderOK(t *testing.T) {
	orderID := uuid.MustParse("00000000-0000-0000-0000-000000000907")

	var rejected bool
	commands := &fakeOrderCommands{
		rejectFn: func(ctx context.Context, id uuid.UUID, interpreterID string) error {
			rejected = true
			return nil
		},
	}

	h := newTestRouter(commands, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/orders/"+orderID.String()+"/reject",
		`{"interpreter_id":"i1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !rejected {
		t.Fatalf("reject never reached the service")
	}
}

func TestEditAppointmentMapsInput(t *testing.T) {
	apptID := uuid.MustParse("00000000-0000-0000-0000-000000000908")

	appts := &fakeAppointmentService{
		editFn: func(ctx context.Context, id uuid.UUID, in appointments.EditInput) (domain.Appointment, error) {
			if in.Topic == nil || *in.Topic != "legal" {
				t.Fatalf("topic = %v, want legal", in.Topic)
			}
			if in.Address != nil {
				t.Fatalf("absent fields must stay nil")
			}
			return domain.Appointment{
				ID:     id,
				Status: domain.AppointmentStatusPending,
				Topic:  *in.Topic,
			}, nil
		},
	}

	h := newTestRouter(&fakeOrderCommands{}, appts, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPatch,
		"/api/v1/appointments/"+apptID.String(),
		`{"topic":"legal"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp appointmentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Topic != "legal" {
		t.Fatalf("topic = %q, want legal", resp.Topic)
	}
}

// stubAppointmentRepo backs a real appointment service with one fixed row so
// validation errors reach the transport layer exactly as production produces
// them.
type stubAppointmentRepo struct {
	appt domain.Appointment
}

func (s *stubAppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.appt, nil
}

func (s *stubAppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("Create not configured")
}

func (s *stubAppointmentRepo) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	panic("Update not configured")
}

func (s *stubAppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	panic("Delete not configured")
}

func (s *stubAppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus, interpreterID *string) (domain.Appointment, error) {
	panic("UpdateStatus not configured")
}

func (s *stubAppointmentRepo) ListByGroupPlatformID(ctx context.Context, platformID string) ([]domain.Appointment, error) {
	panic("ListByGroupPlatformID not configured")
}

func (s *stubAppointmentRepo) RepointGroup(ctx context.Context, appointmentIDs []uuid.UUID, platformID string) error {
	panic("RepointGroup not configured")
}

func (s *stubAppointmentRepo) FindConflictingAppointmentsBeforeAccept(ctx context.Context, interpreterID string, start, end time.Time) ([]domain.Appointment, error) {
	panic("FindConflictingAppointmentsBeforeAccept not configured")
}

func TestEditAppointmentValidationError(t *testing.T) {
	apptID := uuid.MustParse("00000000-0000-0000-0000-000000000909")
	start := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)

	repo := &stubAppointmentRepo{appt: domain.Appointment{
		ID:                 apptID,
		Status:             domain.AppointmentStatusPending,
		ScheduledStartTime: start,
		ScheduledEndTime:   start.Add(time.Hour),
		LanguageFrom:       "en",
		LanguageTo:         "auslan",
	}}
	svc := appointments.NewService(repo, nil, nil)

	h := newTestRouter(&fakeOrderCommands{}, svc, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPatch,
		"/api/v1/appointments/"+apptID.String(),
		`{"language_from":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	payload := decodeError(t, rr)
	if payload.Error != "invalid_request" {
		t.Fatalf("error = %q, want invalid_request", payload.Error)
	}
	if payload.Message != "language_from is required" {
		t.Fatalf("message = %q, want the validation message", payload.Message)
	}
}

func TestCancelAppointmentForwardsActor(t *testing.T) {
	apptID := uuid.MustParse("00000000-0000-0000-0000-000000000910")

	var got cancellation.Request
	cancel := &fakeCancellationService{
		cancelFn: func(ctx context.Context, req cancellation.Request) error {
			got = req
			return nil
		},
	}

	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, cancel)
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/appointments/"+apptID.String()+"/cancel",
		`{"actor":"admin","user_id":"admin-1","on_behalf_of":"interpreter","reason":"sick"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got.Actor.Party != domain.CancelPartyAdmin {
		t.Fatalf("party = %s, want admin", got.Actor.Party)
	}
	if got.Actor.OnBehalfOf != domain.CancelPartyInterpreter {
		t.Fatalf("on_behalf_of = %s, want interpreter", got.Actor.OnBehalfOf)
	}
	if got.Reason != "sick" {
		t.Fatalf("reason = %q, want sick", got.Reason)
	}
}

func TestCancelAppointmentRejectsSystemActor(t *testing.T) {
	apptID := uuid.MustParse("00000000-0000-0000-0000-000000000911")

	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/appointments/"+apptID.String()+"/cancel",
		`{"actor":"system"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCancelAppointmentRejectsOnBehalfOfForNonAdmin(t *testing.T) {
	apptID := uuid.MustParse("00000000-0000-0000-0000-000000000912")

	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/appointments/"+apptID.String()+"/cancel",
		`{"actor":"client","on_behalf_of":"interpreter"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCancelGroupOK(t *testing.T) {
	var gotGroup string
	cancel := &fakeCancellationService{
		cancelGroupFn: func(ctx context.Context, groupPlatformID string, actor cancellation.Actor, reason string) error {
			gotGroup = groupPlatformID
			return nil
		},
	}

	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, cancel)
	rr := doJSON(t, h, http.MethodPost,
		"/api/v1/appointment-groups/GRP-41/cancel",
		`{"actor":"client","user_id":"c1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if gotGroup != "GRP-41" {
		t.Fatalf("group = %q, want GRP-41", gotGroup)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestRouter(&fakeOrderCommands{}, &fakeAppointmentService{}, &fakeCancellationService{})
	rr := doJSON(t, h, http.MethodGet, "/api/v1/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if payload := decodeError(t, rr); payload.Error != "route_not_found" {
		t.Fatalf("error = %q, want route_not_found", payload.Error)
	}
}
