// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, attendance, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeInvalidUsername  = "INVALID_USERNAME"
	ErrCodeAlreadySignedIn  = "ALREADY_SIGNED_IN"
	ErrCodeNotSignedIn      = "NOT_SIGNED_IN"
	ErrCodeDeviceNotAllowed = "DEVICE_NOT_ALLOWED"
	ErrCodeAdminForbidden   = "ADMIN_FORBIDDEN"
)

// NewUserNotFoundError は未登録ユーザーのエラーを生成する。
func NewUserNotFoundError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが登録されていません: %s", username),
		Category: "auth",
		Action:   "ユーザー名を確認するか、管理者にアカウント登録を依頼してください。",
	}
}

// NewInvalidUsernameError は形式が不正なユーザー名のエラーを生成する。
func NewInvalidUsernameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUsername,
		Message:  fmt.Sprintf("ユーザー名の形式が不正です: %s", reason),
		Category: "validation",
		Action:   "ユーザー名は1〜64文字の英数字・ハイフン・アンダースコアで入力してください。",
	}
}

// NewAlreadySignedInError は出勤中ユーザーの再出勤エラーを生成する。
// 状態は一切変更されない（前提条件違反であり、ストレージ障害ではない）。
func NewAlreadySignedInError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadySignedIn,
		Message:  "すでに出勤記録があります。",
		Category: "attendance",
		Action:   "退勤してから再度出勤してください。",
	}
}

// NewNotSignedInError は未出勤ユーザーの退勤エラーを生成する。
// 状態は一切変更されない（新しいセッションを作ることはない）。
func NewNotSignedInError() *APIError {
	return &APIError{
		Code:     ErrCodeNotSignedIn,
		Message:  "出勤記録がないか、すでに退勤しています。",
		Category: "attendance",
		Action:   "先に出勤を記録してください。",
	}
}

// NewDeviceNotAllowedError は未許可端末からのアクセスエラーを生成する。
// ユーザーが管理者に伝えられるよう、端末IDをメッセージに含める。
func NewDeviceNotAllowedError(deviceID string) *APIError {
	return &APIError{
		Code:     ErrCodeDeviceNotAllowed,
		Message:  fmt.Sprintf("この端末からの打刻は許可されていません。端末ID: %s", deviceID),
		Category: "auth",
		Action:   "表示されている端末IDを管理者に伝えて、許可リストへの登録を依頼してください。",
	}
}

// NewAdminForbiddenError は管理トークン不一致のエラーを生成する。
func NewAdminForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminForbidden,
		Message:  "管理者認証に失敗しました。",
		Category: "auth",
		Action:   "正しい管理トークンを指定してください。",
	}
}
