package report

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler は週1回の決まった曜日・時刻にレポートジョブを実行する。
type Scheduler struct {
	job     *Job
	logger  *slog.Logger
	weekday time.Weekday
	hour    int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(job *Job, logger *slog.Logger, weekday time.Weekday, hour int) *Scheduler {
	return &Scheduler{
		job:     job,
		logger:  logger,
		weekday: weekday,
		hour:    hour,
	}
}

// NextRun はnowより後の直近の実行時刻を返す。
// 実行時刻は指定曜日のhour時ちょうど。nowが当日のhour時以降の場合は翌週になる。
func NextRun(now time.Time, weekday time.Weekday, hour int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())

	daysAhead := (int(weekday) - int(now.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)

	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// Start はスケジューラを起動する。
// コンテキストがキャンセルされるまで、次回実行時刻まで待機してはジョブを実行する。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("レポートスケジューラを開始しました",
		slog.String("weekday", s.weekday.String()),
		slog.Int("hour", s.hour),
	)

	for {
		next := NextRun(time.Now(), s.weekday, s.hour)
		s.logger.Info("次回のレポート送信を予約しました",
			slog.Time("next_run", next),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("レポートスケジューラを停止しました")
			return
		case <-timer.C:
			if err := s.job.Run(ctx); err != nil {
				s.logger.Error("レポートジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
