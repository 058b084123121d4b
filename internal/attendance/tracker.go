package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/kintai/internal/model"
	"github.com/hitoshi/kintai/internal/repository"
)

// Tracker は勤怠セッションのサービス層。
// 状態遷移は (日, ユーザー) ごとに NoSession → Open → Closed → Open → … のみで、
// 過去セッションの編集や取り消しは存在しない。
//
// 「オープンなセッションは高々1件で、必ず列の最終要素」という不変条件は
// WeekLogRepositoryの条件付き更新が維持する。Tracker自身はプロセス内
// ロックを持たない。
type Tracker struct {
	weeks repository.WeekLogRepository
	clock Clock
}

// NewTracker はTrackerを生成する。clockがnilの場合はシステム時計を使う。
func NewTracker(weeks repository.WeekLogRepository, clock Clock) *Tracker {
	if clock == nil {
		clock = SystemClock()
	}
	return &Tracker{weeks: weeks, clock: clock}
}

// DayStatus は指定日のユーザーの勤怠状態を表す。
type DayStatus struct {
	Username string          `json:"username"`
	Date     string          `json:"date"`
	SignedIn bool            `json:"signed_in"`
	Sessions []model.Session `json:"sessions"`
}

// EnsureWeek は指定日を含む週のドキュメントを存在保証する。
// 冪等: 同じ週に対して何度呼んでもドキュメントは1件しかできない。
func (t *Tracker) EnsureWeek(ctx context.Context, today time.Time) error {
	weekStart, weekEnd := WeekBounds(today)
	if err := t.weeks.EnsureWeek(ctx, weekStart, weekEnd); err != nil {
		return fmt.Errorf("failed to ensure week: %w", err)
	}
	return nil
}

// IsSignedIn は指定日にオープンなセッションがあるかどうかを返す。
// 週・日・ユーザーのいずれが存在しなくても一様にfalseを返す（エラーにはしない）。
// 判定は「最終要素がsign_outを持たない」の1規則のみ。オープンな要素は
// 最終要素にしか存在しえないため、それ以前を走査する必要はない。
func (t *Tracker) IsSignedIn(ctx context.Context, username string, today time.Time) (bool, error) {
	weekStart, _ := WeekBounds(today)
	sessions, err := t.weeks.SessionsFor(ctx, weekStart, DayKey(today), username)
	if err != nil {
		return false, fmt.Errorf("failed to load sessions: %w", err)
	}

	last, ok := model.LastSession(sessions)
	return ok && last.IsOpen(), nil
}

// Status は指定日のセッション列と出勤中フラグを返す。
func (t *Tracker) Status(ctx context.Context, username string, today time.Time) (*DayStatus, error) {
	weekStart, _ := WeekBounds(today)
	day := DayKey(today)

	sessions, err := t.weeks.SessionsFor(ctx, weekStart, day, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	last, ok := model.LastSession(sessions)
	return &DayStatus{
		Username: username,
		Date:     day,
		SignedIn: ok && last.IsOpen(),
		Sessions: sessions,
	}, nil
}

// SignIn は新しいセッションを追記する。
// 既存セッションの上書きや削除は決して行わない（厳密に追記のみ）。
// すでにオープンなセッションがある場合はmodel.AlreadySignedInを返し、
// 状態は変更されない。判定と追記はストア側の条件付き更新1回で行われる
// ため、並行するSignIn同士が両方成功することはない。
func (t *Tracker) SignIn(ctx context.Context, username string, today time.Time) error {
	weekStart, weekEnd := WeekBounds(today)

	// 週ドキュメントの遅延作成。レポートジョブのパージ直後でもここで復元される。
	if err := t.weeks.EnsureWeek(ctx, weekStart, weekEnd); err != nil {
		return fmt.Errorf("failed to ensure week: %w", err)
	}

	err := t.weeks.AppendSession(ctx, weekStart, DayKey(today), username, t.clock.Now())
	if errors.Is(err, repository.ErrWeekNotFound) {
		// EnsureWeekと追記の間でレポートジョブが週ドキュメントをパージした。
		// 作り直して1回だけ追記し直す。
		if ensureErr := t.weeks.EnsureWeek(ctx, weekStart, weekEnd); ensureErr != nil {
			return fmt.Errorf("failed to ensure week: %w", ensureErr)
		}
		err = t.weeks.AppendSession(ctx, weekStart, DayKey(today), username, t.clock.Now())
	}
	if errors.Is(err, repository.ErrOpenSessionExists) {
		return model.NewAlreadySignedInError()
	}
	if err != nil {
		return fmt.Errorf("failed to record sign-in: %w", err)
	}
	return nil
}

// SignOut は現在オープンなセッション（必然的に最終要素）にsign_outを設定する。
// 閉じ済みの過去セッションには決して触れない。オープンなセッションが
// 無い場合はmodel.NotSignedInを返し、新しいセッションを作ることもない。
func (t *Tracker) SignOut(ctx context.Context, username string, today time.Time) error {
	weekStart, _ := WeekBounds(today)

	err := t.weeks.CloseLastOpenSession(ctx, weekStart, DayKey(today), username, t.clock.Now())
	if errors.Is(err, repository.ErrNoOpenSession) {
		return model.NewNotSignedInError()
	}
	if err != nil {
		return fmt.Errorf("failed to record sign-out: %w", err)
	}
	return nil
}
