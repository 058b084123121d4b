// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/kintai/internal/model"
)

// ErrOpenSessionExists は条件付き出勤追記が「オープンなセッションが既にある」
// ために適用されなかったことを表す。前提条件違反でありストレージ障害ではない。
var ErrOpenSessionExists = errors.New("open session already exists")

// ErrNoOpenSession は条件付き退勤更新が「オープンなセッションが存在しない」
// ために適用されなかったことを表す。前提条件違反でありストレージ障害ではない。
var ErrNoOpenSession = errors.New("no open session to close")

// ErrWeekNotFound は週ドキュメント自体が存在しないために条件付き更新が
// 適用されなかったことを表す。レポートジョブのパージと競合した場合に起こり、
// 呼び出し側はEnsureWeekの後に1回だけ再試行してよい。
var ErrWeekNotFound = errors.New("week document not found")

// AccountRepository は従業員アカウントの参照インターフェース。
type AccountRepository interface {
	// Exists は指定ユーザー名のアカウントが登録済みかどうかを返す。
	Exists(ctx context.Context, username string) (bool, error)
}

// DeviceRepository は端末許可リストの永続化インターフェース。
type DeviceRepository interface {
	// FindByDeviceID は指定IDの端末を取得する。見つからない場合はnilを返す。
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)

	// Upsert は端末を登録する。既存の場合はラベルとactiveフラグを更新する。
	Upsert(ctx context.Context, device *model.Device) error

	// Deactivate は指定IDの端末を許可リストから外す。
	// 端末が存在しない場合もエラーにはしない（冪等）。
	Deactivate(ctx context.Context, deviceID string) error
}

// WeekLogRepository は週次勤怠ドキュメントの永続化インターフェース。
// すべての書き込みはドキュメントストアの条件付き更新1回で表現され、
// read-then-writeの競合ウィンドウを持たない。
type WeekLogRepository interface {
	// EnsureWeek は指定week_startの週ドキュメントを存在保証する。
	// 既に存在する場合は何もしない（冪等なupsert-if-absent）。
	EnsureWeek(ctx context.Context, weekStart, weekEnd string) error

	// SessionsFor は指定週・日・ユーザーのセッション列を返す。
	// 週・日・ユーザーのいずれかが存在しない場合は空列を返す（エラーにはしない）。
	// 形式が不正な要素は読み飛ばし、復号できた要素のみを返す。
	SessionsFor(ctx context.Context, weekStart, day, username string) ([]model.Session, error)

	// AppendSession はオープンなセッションが存在しない場合に限り、
	// セッション列の末尾に新しいセッションを1件追記する。条件を満たさない
	// 場合はErrOpenSessionExistsを返し、状態は一切変更しない。
	// 週ドキュメントが存在しない場合はErrWeekNotFoundを返す。
	AppendSession(ctx context.Context, weekStart, day, username string, signIn time.Time) error

	// CloseLastOpenSession はオープンなセッションのうちインデックスが最大の
	// 1件にのみsign_outを設定する。オープンなセッションが存在しない場合は
	// ErrNoOpenSessionを返し、状態は一切変更しない。
	CloseLastOpenSession(ctx context.Context, weekStart, day, username string, signOut time.Time) error

	// ListAll は保存されている全週ドキュメントをweek_start昇順で返す。
	ListAll(ctx context.Context) ([]model.WeekDocument, error)

	// PurgeAll は全週ドキュメントを削除する。週次レポート送信後のリセットに使う。
	PurgeAll(ctx context.Context) error
}
