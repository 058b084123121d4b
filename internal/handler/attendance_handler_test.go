package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/kintai/internal/attendance"
	"github.com/hitoshi/kintai/internal/model"
)

// --- モック ---

type mockAttendanceService struct {
	ensureWeekFn func(ctx context.Context, today time.Time) error
	statusFn     func(ctx context.Context, username string, today time.Time) (*attendance.DayStatus, error)
	signInFn     func(ctx context.Context, username string, today time.Time) error
	signOutFn    func(ctx context.Context, username string, today time.Time) error

	signInCalled  bool
	signOutCalled bool
}

func (m *mockAttendanceService) EnsureWeek(ctx context.Context, today time.Time) error {
	if m.ensureWeekFn != nil {
		return m.ensureWeekFn(ctx, today)
	}
	return nil
}

func (m *mockAttendanceService) Status(ctx context.Context, username string, today time.Time) (*attendance.DayStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, username, today)
	}
	return &attendance.DayStatus{Username: username, Date: attendance.DayKey(today)}, nil
}

func (m *mockAttendanceService) SignIn(ctx context.Context, username string, today time.Time) error {
	m.signInCalled = true
	if m.signInFn != nil {
		return m.signInFn(ctx, username, today)
	}
	return nil
}

func (m *mockAttendanceService) SignOut(ctx context.Context, username string, today time.Time) error {
	m.signOutCalled = true
	if m.signOutFn != nil {
		return m.signOutFn(ctx, username, today)
	}
	return nil
}

type mockAccountFinder struct {
	existsFn func(ctx context.Context, username string) (bool, error)
}

func (m *mockAccountFinder) Exists(ctx context.Context, username string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, username)
	}
	return true, nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

var handlerTestNow = time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC)

func newAttendanceHandler(service *mockAttendanceService, accounts *mockAccountFinder) *AttendanceHandler {
	return NewAttendanceHandler(service, accounts, nil, &fixedClock{now: handlerTestNow})
}

func punchBody(username string) *strings.Reader {
	return strings.NewReader(fmt.Sprintf(`{"username":%q}`, username))
}

func decodeErrorResponse(t *testing.T, resp *http.Response) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// --- SignIn のテスト ---

func TestSignIn_Success(t *testing.T) {
	service := &mockAttendanceService{}
	h := newAttendanceHandler(service, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-in", punchBody("alice"))
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if !service.signInCalled {
		t.Error("service.SignIn should be called")
	}

	var body punchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Username != "alice" {
		t.Errorf("username = %q, want %q", body.Username, "alice")
	}
	if body.Date != "2024-01-10" {
		t.Errorf("date = %q, want %q", body.Date, "2024-01-10")
	}
	if !body.SignedIn {
		t.Error("signed_in should be true after sign-in")
	}
}

func TestSignIn_InvalidUsername_Returns400(t *testing.T) {
	tests := []string{"", "user name", "ユーザー", strings.Repeat("a", 65), "a;DROP TABLE"}

	for _, username := range tests {
		t.Run(fmt.Sprintf("username=%q", username), func(t *testing.T) {
			service := &mockAttendanceService{}
			h := newAttendanceHandler(service, &mockAccountFinder{})

			req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-in", punchBody(username))
			w := httptest.NewRecorder()

			h.SignIn(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
			if body := decodeErrorResponse(t, resp); body.Code != model.ErrCodeInvalidUsername {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidUsername)
			}
			if service.signInCalled {
				t.Error("service must not be called for invalid username")
			}
		})
	}
}

func TestSignIn_UnknownUser_Returns404(t *testing.T) {
	service := &mockAttendanceService{}
	accounts := &mockAccountFinder{
		existsFn: func(ctx context.Context, username string) (bool, error) {
			return false, nil
		},
	}
	h := newAttendanceHandler(service, accounts)

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-in", punchBody("ghost"))
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if body := decodeErrorResponse(t, resp); body.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUserNotFound)
	}
	if service.signInCalled {
		t.Error("service must not be called for unknown user")
	}
}

func TestSignIn_AlreadySignedIn_Returns409(t *testing.T) {
	service := &mockAttendanceService{
		signInFn: func(ctx context.Context, username string, today time.Time) error {
			return model.NewAlreadySignedInError()
		},
	}
	h := newAttendanceHandler(service, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-in", punchBody("alice"))
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if body := decodeErrorResponse(t, resp); body.Code != model.ErrCodeAlreadySignedIn {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeAlreadySignedIn)
	}
}

func TestSignIn_InvalidJSON_Returns400(t *testing.T) {
	service := &mockAttendanceService{}
	h := newAttendanceHandler(service, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-in", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorResponse(t, resp); body.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want %q", body.Code, "INVALID_REQUEST")
	}
}

func TestSignIn_StorageFault_Returns500(t *testing.T) {
	service := &mockAttendanceService{
		signInFn: func(ctx context.Context, username string, today time.Time) error {
			return errors.New("connection refused")
		},
	}
	h := newAttendanceHandler(service, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-in", punchBody("alice"))
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if body := decodeErrorResponse(t, resp); body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
}

// --- SignOut のテスト ---

func TestSignOut_Success(t *testing.T) {
	service := &mockAttendanceService{}
	h := newAttendanceHandler(service, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-out", punchBody("alice"))
	w := httptest.NewRecorder()

	h.SignOut(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !service.signOutCalled {
		t.Error("service.SignOut should be called")
	}

	var body punchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.SignedIn {
		t.Error("signed_in should be false after sign-out")
	}
}

func TestSignOut_NotSignedIn_Returns409(t *testing.T) {
	service := &mockAttendanceService{
		signOutFn: func(ctx context.Context, username string, today time.Time) error {
			return model.NewNotSignedInError()
		},
	}
	h := newAttendanceHandler(service, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodPost, "/api/attendance/sign-out", punchBody("alice"))
	w := httptest.NewRecorder()

	h.SignOut(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if body := decodeErrorResponse(t, resp); body.Code != model.ErrCodeNotSignedIn {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeNotSignedIn)
	}
}

// --- Status のテスト ---

func TestStatus_Success(t *testing.T) {
	signIn := handlerTestNow.Add(-30 * time.Minute)
	service := &mockAttendanceService{
		statusFn: func(ctx context.Context, username string, today time.Time) (*attendance.DayStatus, error) {
			return &attendance.DayStatus{
				Username: username,
				Date:     attendance.DayKey(today),
				SignedIn: true,
				Sessions: []model.Session{{SignIn: signIn}},
			}, nil
		},
	}
	h := newAttendanceHandler(service, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/status?username=alice", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body attendance.DayStatus
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Username != "alice" {
		t.Errorf("username = %q, want %q", body.Username, "alice")
	}
	if body.Date != "2024-01-10" {
		t.Errorf("date = %q, want %q", body.Date, "2024-01-10")
	}
	if !body.SignedIn {
		t.Error("signed_in should be true")
	}
	if len(body.Sessions) != 1 {
		t.Errorf("sessions length = %d, want 1", len(body.Sessions))
	}
}

func TestStatus_MissingUsername_Returns400(t *testing.T) {
	h := newAttendanceHandler(&mockAttendanceService{}, &mockAccountFinder{})

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/status", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorResponse(t, resp); body.Code != model.ErrCodeInvalidUsername {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidUsername)
	}
}

func TestStatus_AccountLookupFault_Returns500(t *testing.T) {
	accounts := &mockAccountFinder{
		existsFn: func(ctx context.Context, username string) (bool, error) {
			return false, errors.New("connection reset")
		},
	}
	h := newAttendanceHandler(&mockAttendanceService{}, accounts)

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/status?username=alice", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}
