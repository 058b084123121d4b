package report

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/kintai/internal/model"
)

func ts(hour, minute int) time.Time {
	return time.Date(2024, time.January, 8, hour, minute, 0, 0, time.UTC)
}

func tsPtr(hour, minute int) *time.Time {
	t := ts(hour, minute)
	return &t
}

// TestRender_HeaderAndWeekRange はヘッダーと週の範囲が出力されることを検証する。
func TestRender_HeaderAndWeekRange(t *testing.T) {
	weeks := []model.WeekDocument{
		{WeekStart: "2024-01-08", WeekEnd: "2024-01-14", Logs: model.DayLogs{}},
	}

	out := Render(weeks)

	if !strings.HasPrefix(out, "Weekly Attendance Report\n") {
		t.Errorf("report should start with header, got %q", out)
	}
	if !strings.Contains(out, "Week: 2024-01-08 -> 2024-01-14") {
		t.Errorf("report should contain week range, got %q", out)
	}
}

// TestRender_SessionsLine はセッションが"sign_in -> sign_out"形式で出力されることを検証する。
func TestRender_SessionsLine(t *testing.T) {
	weeks := []model.WeekDocument{
		{
			WeekStart: "2024-01-08",
			WeekEnd:   "2024-01-14",
			Logs: model.DayLogs{
				"2024-01-08": {
					"alice": {
						{SignIn: ts(9, 0), SignOut: tsPtr(17, 30)},
					},
				},
			},
		},
	}

	out := Render(weeks)

	want := "  alice: 2024-01-08 09:00:00 -> 2024-01-08 17:30:00"
	if !strings.Contains(out, want) {
		t.Errorf("report should contain %q, got:\n%s", want, out)
	}
}

// TestRender_OpenSessionShowsDash は未退勤のセッションが"-"で表されることを検証する。
func TestRender_OpenSessionShowsDash(t *testing.T) {
	weeks := []model.WeekDocument{
		{
			WeekStart: "2024-01-08",
			WeekEnd:   "2024-01-14",
			Logs: model.DayLogs{
				"2024-01-09": {
					"bob": {
						{SignIn: ts(8, 45)},
					},
				},
			},
		},
	}

	out := Render(weeks)

	want := "  bob: 2024-01-08 08:45:00 -> -"
	if !strings.Contains(out, want) {
		t.Errorf("report should contain %q, got:\n%s", want, out)
	}
}

// TestRender_SortsDaysAndUsers は日付とユーザー名が辞書順に並ぶことを検証する。
func TestRender_SortsDaysAndUsers(t *testing.T) {
	weeks := []model.WeekDocument{
		{
			WeekStart: "2024-01-08",
			WeekEnd:   "2024-01-14",
			Logs: model.DayLogs{
				"2024-01-10": {
					"zoe":   {{SignIn: ts(9, 0)}},
					"alice": {{SignIn: ts(9, 5)}},
				},
				"2024-01-08": {
					"bob": {{SignIn: ts(9, 0)}},
				},
			},
		},
	}

	out := Render(weeks)

	day1 := strings.Index(out, "2024-01-08\n")
	day2 := strings.Index(out, "2024-01-10\n")
	if day1 == -1 || day2 == -1 || day1 > day2 {
		t.Errorf("days should appear in ascending order, got:\n%s", out)
	}

	alice := strings.Index(out, "  alice:")
	zoe := strings.Index(out, "  zoe:")
	if alice == -1 || zoe == -1 || alice > zoe {
		t.Errorf("users should appear in ascending order, got:\n%s", out)
	}
}

// TestRender_MultipleSessionsPerUser は同一ユーザーの複数セッションが全て出力されることを検証する。
func TestRender_MultipleSessionsPerUser(t *testing.T) {
	weeks := []model.WeekDocument{
		{
			WeekStart: "2024-01-08",
			WeekEnd:   "2024-01-14",
			Logs: model.DayLogs{
				"2024-01-08": {
					"alice": {
						{SignIn: ts(9, 0), SignOut: tsPtr(12, 0)},
						{SignIn: ts(13, 0)},
					},
				},
			},
		},
	}

	out := Render(weeks)

	if strings.Count(out, "  alice:") != 2 {
		t.Errorf("expected 2 session lines for alice, got:\n%s", out)
	}
}

// TestRender_EmptyWeeks はログが無くてもヘッダーだけのレポートになることを検証する。
func TestRender_EmptyWeeks(t *testing.T) {
	out := Render(nil)

	if out != "Weekly Attendance Report\n" {
		t.Errorf("empty report should only contain header, got %q", out)
	}
}

// TestBuildMessage_MultipartStructure はMIMEメッセージの構造を検証する。
func TestBuildMessage_MultipartStructure(t *testing.T) {
	msg, err := buildMessage(
		"kintai@example.com",
		[]string{"boss@example.com", "hr@example.com"},
		"Weekly Attendance Report",
		"report body",
		[]byte("attached report"),
		"weekly_report.txt",
	)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	s := string(msg)
	checks := []string{
		"From: kintai@example.com",
		"To: boss@example.com, hr@example.com",
		"Subject: Weekly Attendance Report",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed",
		"report body",
		`attachment; filename="weekly_report.txt"`,
		"Content-Transfer-Encoding: base64",
	}
	for _, want := range checks {
		if !strings.Contains(s, want) {
			t.Errorf("message should contain %q", want)
		}
	}
}

// TestBuildMessage_NoAttachment は添付なしでも本文パートのみで組み立てられることを検証する。
func TestBuildMessage_NoAttachment(t *testing.T) {
	msg, err := buildMessage(
		"kintai@example.com",
		[]string{"boss@example.com"},
		"Weekly Attendance Report",
		"body only",
		nil,
		"",
	)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	s := string(msg)
	if !strings.Contains(s, "body only") {
		t.Error("message should contain body")
	}
	if strings.Contains(s, "attachment;") {
		t.Error("message should not contain attachment part")
	}
}
