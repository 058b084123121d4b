package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/hitoshi/kintai/internal/attendance"
	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/model"
)

// usernamePattern は受け付けるユーザー名の形式。
// 英数字・ハイフン・アンダースコアの1〜64文字。
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// AttendanceServiceInterface は勤怠ハンドラーが必要とするサービスインターフェース。
type AttendanceServiceInterface interface {
	// EnsureWeek は指定日を含む週のドキュメントを冪等に作成する。
	EnsureWeek(ctx context.Context, today time.Time) error
	// Status は指定日のユーザーの勤怠状態を返す。
	Status(ctx context.Context, username string, today time.Time) (*attendance.DayStatus, error)
	// SignIn は出勤を記録する。出勤中の場合はALREADY_SIGNED_INを返す。
	SignIn(ctx context.Context, username string, today time.Time) error
	// SignOut は退勤を記録する。未出勤の場合はNOT_SIGNED_INを返す。
	SignOut(ctx context.Context, username string, today time.Time) error
}

// AccountFinder はアカウントの存在確認に必要なインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountFinder interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// AttendanceHandler は打刻と状態照会のHTTPハンドラー。
type AttendanceHandler struct {
	service   AttendanceServiceInterface
	accounts  AccountFinder
	collector metrics.MetricsCollector
	clock     attendance.Clock
}

// NewAttendanceHandler はAttendanceHandlerを生成する。
// clockがnilの場合はシステム時計を使用する。
func NewAttendanceHandler(
	service AttendanceServiceInterface,
	accounts AccountFinder,
	collector metrics.MetricsCollector,
	clock attendance.Clock,
) *AttendanceHandler {
	if clock == nil {
		clock = attendance.SystemClock()
	}
	return &AttendanceHandler{
		service:   service,
		accounts:  accounts,
		collector: collector,
		clock:     clock,
	}
}

// punchRequest は打刻リクエストのボディ。
type punchRequest struct {
	Username string `json:"username"`
}

// punchResponse は打刻成功時のレスポンス。
type punchResponse struct {
	Username  string    `json:"username"`
	Date      string    `json:"date"`
	SignedIn  bool      `json:"signed_in"`
	Timestamp time.Time `json:"timestamp"`
}

// SignIn は出勤打刻を処理する。
// POST /api/attendance/sign-in
func (h *AttendanceHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	username, ok := h.resolveUsernameFromBody(w, r)
	if !ok {
		return
	}

	now := h.clock.Now()
	if err := h.service.SignIn(r.Context(), username, now); err != nil {
		h.recordPunchFailure(err, "already_signed_in")
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordSignIn()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(punchResponse{
		Username:  username,
		Date:      attendance.DayKey(now),
		SignedIn:  true,
		Timestamp: now,
	})
}

// SignOut は退勤打刻を処理する。
// POST /api/attendance/sign-out
func (h *AttendanceHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	username, ok := h.resolveUsernameFromBody(w, r)
	if !ok {
		return
	}

	now := h.clock.Now()
	if err := h.service.SignOut(r.Context(), username, now); err != nil {
		h.recordPunchFailure(err, "not_signed_in")
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordSignOut()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(punchResponse{
		Username:  username,
		Date:      attendance.DayKey(now),
		SignedIn:  false,
		Timestamp: now,
	})
}

// Status は当日の勤怠状態を返す。
// GET /api/attendance/status?username=...
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if !h.validateUsername(w, r.Context(), username) {
		return
	}

	status, err := h.service.Status(r.Context(), username, h.clock.Now())
	if err != nil {
		if h.collector != nil {
			h.collector.RecordStorageError()
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// resolveUsernameFromBody はリクエストボディからユーザー名を取り出して検証する。
// 検証に失敗した場合はエラーレスポンスを書き込みfalseを返す。
func (h *AttendanceHandler) resolveUsernameFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req punchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return "", false
	}

	if !h.validateUsername(w, r.Context(), req.Username) {
		return "", false
	}
	return req.Username, true
}

// validateUsername はユーザー名の形式とアカウントの存在を検証する。
// 検証に失敗した場合はエラーレスポンスを書き込みfalseを返す。
func (h *AttendanceHandler) validateUsername(w http.ResponseWriter, ctx context.Context, username string) bool {
	if !usernamePattern.MatchString(username) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidUsernameError(username))
		return false
	}

	exists, err := h.accounts.Exists(ctx, username)
	if err != nil {
		if h.collector != nil {
			h.collector.RecordStorageError()
		}
		handleServiceError(w, err)
		return false
	}
	if !exists {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(username))
		return false
	}
	return true
}

// recordPunchFailure は打刻失敗をメトリクスに記録する。
// 前提条件違反は理由付きの拒否、それ以外はストレージ障害として数える。
func (h *AttendanceHandler) recordPunchFailure(err error, reason string) {
	if h.collector == nil {
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		h.collector.RecordRejected(reason)
		return
	}
	h.collector.RecordStorageError()
}
