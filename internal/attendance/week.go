// Package attendance は勤怠セッションの状態遷移を提供する。
// (週, 日, ユーザー) ごとの時系列セッション列に対して、
// 出勤中判定・出勤追記・退勤更新の3操作のみを公開する。
package attendance

import "time"

// dayFormat は日付キーおよびweek_start/week_endの書式。
const dayFormat = "2006-01-02"

// DayKey は日付をlogsマッピングのキー文字列に変換する。
func DayKey(t time.Time) string {
	return t.Format(dayFormat)
}

// WeekBounds は指定日を含むISO週の月曜と日曜を日付文字列で返す。
// 両端とも週に含まれる（inclusive）。
func WeekBounds(today time.Time) (weekStart, weekEnd string) {
	// time.WeekdayはSunday=0。月曜始まりに正規化する。
	offset := (int(today.Weekday()) + 6) % 7
	start := today.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 6)
	return start.Format(dayFormat), end.Format(dayFormat)
}
