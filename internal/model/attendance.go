// Package model はドメインモデルを定義する。
package model

import "time"

// Session は1回の出勤/退勤ペアを表す。
// sign_outが未設定のセッションを「オープン」と呼ぶ。
type Session struct {
	SignIn  time.Time  `bson:"sign_in" json:"sign_in"`
	SignOut *time.Time `bson:"sign_out,omitempty" json:"sign_out,omitempty"`
}

// IsOpen はまだ退勤が記録されていないセッションかどうかを返す。
// sign_inがゼロ値のセッション（不正な形式のエントリ）はオープンとみなさない。
func (s Session) IsOpen() bool {
	return !s.SignIn.IsZero() && s.SignOut == nil
}

// DayLogs は日付キー（"2006-01-02"形式）→ ユーザー名 → セッション列のマッピング。
// セッション列は追記専用で、挿入順が時系列順になる。
type DayLogs map[string]map[string][]Session

// WeekDocument は1暦週（月曜〜日曜）分の全ユーザーの勤怠記録を保持する永続化単位。
// week_startごとに高々1件しか存在しない（ユニークインデックスで保証する）。
type WeekDocument struct {
	WeekStart string  `bson:"week_start" json:"week_start"`
	WeekEnd   string  `bson:"week_end" json:"week_end"`
	Logs      DayLogs `bson:"logs" json:"logs"`
}

// SessionsFor は指定日・指定ユーザーのセッション列を返す。
// 週・日・ユーザーのいずれかが存在しない場合はnilを返す（エラーにはしない）。
func (w *WeekDocument) SessionsFor(day, username string) []Session {
	if w == nil || w.Logs == nil {
		return nil
	}
	users, ok := w.Logs[day]
	if !ok {
		return nil
	}
	return users[username]
}

// LastSession はセッション列の最終要素を返す。列が空の場合はfalseを返す。
// オープンなセッションは最終要素にしか存在しえないため、
// 出勤中判定は最終要素のみを見れば十分である。
func LastSession(sessions []Session) (Session, bool) {
	if len(sessions) == 0 {
		return Session{}, false
	}
	return sessions[len(sessions)-1], true
}
