// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn()
	RecordSignOut()
	RecordRejected(reason string)
	RecordStorageError()
	RecordDeviceDenied()
	RecordReportRun(result string)
	RecordReportDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn         prometheus.Counter
	signOut        prometheus.Counter
	rejected       *prometheus.CounterVec
	storageErrors  prometheus.Counter
	deviceDenied   prometheus.Counter
	reportRuns     *prometheus.CounterVec
	reportDuration prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kintai_sign_in_total",
			Help: "出勤記録成功の合計数",
		}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kintai_sign_out_total",
			Help: "退勤記録成功の合計数",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kintai_rejected_total",
			Help: "前提条件違反で拒否された打刻の合計数",
		}, []string{"reason"}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kintai_storage_errors_total",
			Help: "ストレージ障害の合計数",
		}),
		deviceDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kintai_device_denied_total",
			Help: "未許可端末として拒否されたリクエストの合計数",
		}),
		reportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kintai_report_runs_total",
			Help: "週次レポート実行の合計数",
		}, []string{"result"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kintai_report_duration_seconds",
			Help:    "週次レポート処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signOut,
		c.rejected,
		c.storageErrors,
		c.deviceDenied,
		c.reportRuns,
		c.reportDuration,
	)

	return c
}

// RecordSignIn は出勤記録の成功を記録する。
func (c *Collector) RecordSignIn() {
	c.signIn.Inc()
}

// RecordSignOut は退勤記録の成功を記録する。
func (c *Collector) RecordSignOut() {
	c.signOut.Inc()
}

// RecordRejected は前提条件違反による拒否を理由別に記録する。
// reasonは"already_signed_in"または"not_signed_in"。
func (c *Collector) RecordRejected(reason string) {
	c.rejected.WithLabelValues(reason).Inc()
}

// RecordStorageError はストレージ障害を記録する。
func (c *Collector) RecordStorageError() {
	c.storageErrors.Inc()
}

// RecordDeviceDenied は未許可端末の拒否を記録する。
func (c *Collector) RecordDeviceDenied() {
	c.deviceDenied.Inc()
}

// RecordReportRun は週次レポートの実行結果を記録する。
// resultは"success"または"failure"。
func (c *Collector) RecordReportRun(result string) {
	c.reportRuns.WithLabelValues(result).Inc()
}

// RecordReportDuration は週次レポートの処理時間を記録する。
func (c *Collector) RecordReportDuration(duration time.Duration) {
	c.reportDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
