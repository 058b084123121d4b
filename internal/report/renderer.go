// Package report は週次勤怠レポートの生成と送信を提供する。
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/kintai/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// Render は週ドキュメントの一覧からプレーンテキストのレポートを生成する。
// 日付・ユーザー名を辞書順にソートし、未退勤のセッションは"-"で表す。
func Render(weeks []model.WeekDocument) string {
	var b strings.Builder

	b.WriteString("Weekly Attendance Report\n")

	for _, week := range weeks {
		fmt.Fprintf(&b, "Week: %s -> %s\n\n", week.WeekStart, week.WeekEnd)

		days := make([]string, 0, len(week.Logs))
		for day := range week.Logs {
			days = append(days, day)
		}
		sort.Strings(days)

		for _, day := range days {
			b.WriteString(day)
			b.WriteString("\n")

			users := make([]string, 0, len(week.Logs[day]))
			for user := range week.Logs[day] {
				users = append(users, user)
			}
			sort.Strings(users)

			for _, user := range users {
				for _, s := range week.Logs[day][user] {
					fmt.Fprintf(&b, "  %s: %s -> %s\n", user, formatTime(s.SignIn), formatOptTime(s.SignOut))
				}
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
