package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kintai/internal/metrics"
	"github.com/hitoshi/kintai/internal/middleware"
	"github.com/hitoshi/kintai/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 勤怠
	AttendanceService AttendanceServiceInterface
	Accounts          AccountFinder

	// 端末許可リスト
	Devices    repository.DeviceRepository
	AdminToken string

	// 観測
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// 死活確認（コンポーネント名 -> チェック関数）
	HealthCheckers map[string]HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → DeviceIdentity
//	  → (打刻ルートのみ) DeviceGate → CSRF → RateLimit
//
// /health と /metrics は端末識別の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	attendanceHandler := NewAttendanceHandler(deps.AttendanceService, deps.Accounts, deps.Collector, nil)
	deviceHandler := NewDeviceHandler(deps.Devices, deps.Collector, deps.AdminToken)

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	// --- 端末識別の外のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthCheckers))

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	// --- 端末識別が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewDeviceIdentityMiddleware(deps.CookieSecure, deps.CookieDomain))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 自端末の照会は許可前でも可能（端末IDを管理者に伝えるため）
		r.Get("/api/device", deviceHandler.GetDevice)

		// 管理API（X-Admin-Tokenヘッダーで認証、端末許可は不要）
		r.Route("/api/admin/devices", func(r chi.Router) {
			r.Post("/", deviceHandler.UpsertDevice)
			r.Delete("/{id}", deviceHandler.DeactivateDevice)
		})

		// 打刻と照会は許可端末のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewDeviceGateMiddleware(deps.Devices))
			r.Use(middleware.NewCSRFMiddleware(csrfConfig))

			r.Route("/api/attendance", func(r chi.Router) {
				r.Get("/status", attendanceHandler.Status)

				// 打刻には専用のレート制限を重ねる
				r.With(deps.RateLimiter.PunchMiddleware()).Post("/sign-in", attendanceHandler.SignIn)
				r.With(deps.RateLimiter.PunchMiddleware()).Post("/sign-out", attendanceHandler.SignOut)
			})
		})
	})

	return r
}
