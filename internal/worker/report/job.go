// Package report は週次勤怠レポートのバックグラウンド送信処理を提供する。
// レポート生成、メール送信、送信後のログ破棄までを一連のジョブとして実行する。
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/kintai/internal/attendance"
	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/model"
	"github.com/hitoshi/kintai/internal/report"
	"github.com/hitoshi/kintai/internal/repository"
)

const (
	reportSubject  = "Weekly Attendance Report"
	reportFilename = "weekly_report.txt"
)

// Job は週次レポートの生成・送信・ログ破棄を行うジョブ。
// 送信に成功した場合のみログを破棄し、当週のドキュメントを再作成する。
// 送信失敗時はログを保持したまま次回の実行に持ち越す。
type Job struct {
	weeks     repository.WeekLogRepository
	mailer    report.Mailer
	collector metrics.MetricsCollector
	logger    *slog.Logger
	clock     attendance.Clock
}

// NewJob は新しいJobを生成する。
// clockがnilの場合はシステム時計を使用する。
func NewJob(
	weeks repository.WeekLogRepository,
	mailer report.Mailer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	clock attendance.Clock,
) *Job {
	if clock == nil {
		clock = attendance.SystemClock()
	}
	return &Job{
		weeks:     weeks,
		mailer:    mailer,
		collector: collector,
		logger:    logger,
		clock:     clock,
	}
}

// Run は週次レポートを1回生成して送信する。
// 記録が1件もない場合は送信をスキップする（空レポートは送らない）。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	weeks, err := j.weeks.ListAll(ctx)
	if err != nil {
		j.recordResult("failure", start)
		j.logger.Error("週次ログの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("週次ログの取得に失敗: %w", err)
	}

	if !hasLogs(weeks) {
		j.logger.Info("勤怠記録がないためレポート送信をスキップします")
		return nil
	}

	text := report.Render(weeks)

	if err := j.mailer.Send(reportSubject, text, []byte(text), reportFilename); err != nil {
		j.recordResult("failure", start)
		j.logger.Error("週次レポートの送信に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("週次レポートの送信に失敗: %w", err)
	}

	// 送信できたログは破棄し、当週のドキュメントを作り直す
	if err := j.weeks.PurgeAll(ctx); err != nil {
		j.recordResult("failure", start)
		j.logger.Error("送信済みログの破棄に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("送信済みログの破棄に失敗: %w", err)
	}

	weekStart, weekEnd := attendance.WeekBounds(j.clock.Now())
	if err := j.weeks.EnsureWeek(ctx, weekStart, weekEnd); err != nil {
		j.recordResult("failure", start)
		return fmt.Errorf("当週ドキュメントの再作成に失敗: %w", err)
	}

	j.recordResult("success", start)
	j.logger.Info("週次レポートを送信しました",
		slog.Int("week_count", len(weeks)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

func (j *Job) recordResult(result string, start time.Time) {
	if j.collector == nil {
		return
	}
	j.collector.RecordReportRun(result)
	j.collector.RecordReportDuration(time.Since(start))
}

// hasLogs はいずれかの週ドキュメントに記録が存在するかを返す。
func hasLogs(weeks []model.WeekDocument) bool {
	for _, w := range weeks {
		if len(w.Logs) > 0 {
			return true
		}
	}
	return false
}
