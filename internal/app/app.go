package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/kintai/internal/attendance"
	"github.com/hitoshi/kintai/internal/config"
	"github.com/hitoshi/kintai/internal/database"
	"github.com/hitoshi/kintai/internal/handler"
	"github.com/hitoshi/kintai/internal/logger"
	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/middleware"
	reportpkg "github.com/hitoshi/kintai/internal/report"
	"github.com/hitoshi/kintai/internal/repository"
	reportworker "github.com/hitoshi/kintai/internal/worker/report"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandReport:
		return runReport(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// PostgreSQLとMongoDBへの接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. PostgreSQL接続（アカウント・端末許可リスト）
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. MongoDB接続（週次勤怠ログ）
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connectCancel()

	mongoClient, err := database.ConnectMongo(connectCtx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	defer database.DisconnectMongo(mongoClient)

	slog.Info("mongodb connection established")

	// 3. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	deviceRepo := repository.NewPostgresDeviceRepo(db)
	weekRepo := repository.NewMongoWeekLogRepo(mongoClient.Database(cfg.MongoDatabase))

	if err := weekRepo.EnsureIndexes(connectCtx); err != nil {
		return fmt.Errorf("failed to ensure mongodb indexes: %w", err)
	}

	// 4. ドメインサービスの初期化
	clock := attendance.SystemClock()
	tracker := attendance.NewTracker(weekRepo, clock)

	// 当週のドキュメントが存在しない場合は起動時に作成する
	if err := tracker.EnsureWeek(connectCtx, clock.Now()); err != nil {
		return fmt.Errorf("failed to ensure current week document: %w", err)
	}

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. レート制限の初期化（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = perMinute(cfg.RateLimitGeneral)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PunchRate = perMinute(cfg.RateLimitPunch)
	rateLimiterCfg.PunchBurst = cfg.RateLimitPunch

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AttendanceService: tracker,
		Accounts:          accountRepo,

		Devices:    deviceRepo,
		AdminToken: cfg.AdminToken,

		Collector: collector,
		Gatherer:  registry,

		HealthCheckers: map[string]handler.HealthChecker{
			"postgres": func(ctx context.Context) error {
				return db.PingContext(ctx)
			},
			"mongodb": func(ctx context.Context) error {
				return mongoClient.Ping(ctx, nil)
			},
		},
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// MongoDB接続を開き、週次レポートスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	job, cleanup, err := buildReportJob(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	scheduler := reportworker.NewScheduler(
		job, slog.Default(), cfg.ReportWeekday, cfg.ReportHour,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("report_weekday", cfg.ReportWeekday.String()),
		slog.Int("report_hour", cfg.ReportHour),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runReport は週次レポートジョブを1回だけ実行する。
// cron等の外部スケジューラから呼び出す運用向けのサブコマンド。
func runReport(cfg *config.Config) error {
	job, cleanup, err := buildReportJob(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return job.Run(ctx)
}

// buildReportJob はMongoDB接続を開き、週次レポートジョブを組み立てる。
// 返されるcleanup関数は呼び出し側が必ず実行すること。
func buildReportJob(cfg *config.Config) (*reportworker.Job, func(), error) {
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connectCancel()

	mongoClient, err := database.ConnectMongo(connectCtx, cfg.MongoURI)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	slog.Info("mongodb connection established (worker)")

	weekRepo := repository.NewMongoWeekLogRepo(mongoClient.Database(cfg.MongoDatabase))
	if err := weekRepo.EnsureIndexes(connectCtx); err != nil {
		database.DisconnectMongo(mongoClient)
		return nil, nil, fmt.Errorf("failed to ensure mongodb indexes: %w", err)
	}

	mailer := reportpkg.NewSMTPMailer(newSMTPConfig(cfg))

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	job := reportworker.NewJob(
		weekRepo, mailer, collector, slog.Default(), attendance.SystemClock(),
	)

	cleanup := func() {
		if err := database.DisconnectMongo(mongoClient); err != nil {
			slog.Error("mongodb disconnect failed", slog.String("error", err.Error()))
		}
	}

	return job, cleanup, nil
}

// newSMTPConfig はConfigからSMTP送信設定を組み立てる。
func newSMTPConfig(cfg *config.Config) reportpkg.SMTPConfig {
	return reportpkg.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		User:       cfg.SMTPUser,
		Password:   cfg.SMTPPassword,
		Recipients: cfg.ReportRecipients,
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// perMinute はreq/min単位の上限をrate.Limit（req/sec）に変換する。
func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
