package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	PunchRate       rate.Limit    // 打刻（出勤・退勤）のレート（req/sec）。10/60
	PunchBurst      int           // 打刻のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: API全般 120 req/min/端末、打刻 10 req/min/端末
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		PunchRate:       rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		PunchBurst:      10,
		CleanupInterval: 5 * time.Minute,
	}
}

// deviceLimiter は端末ごとのレートリミッターとアクセス時刻を保持する。
type deviceLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter は端末ごとのレート制限を管理する。
// API全般のレート制限と打刻のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*deviceLimiter

	punchMu       sync.RWMutex
	punchLimiters map[string]*deviceLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*deviceLimiter),
		punchLimiters:   make(map[string]*deviceLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストに端末IDが含まれている必要がある
// （NewDeviceIdentityMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := DeviceIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(deviceID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("device_id", deviceID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PunchMiddleware は打刻（出勤・退勤）専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) PunchMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := DeviceIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			limiter := rl.getOrCreatePunchLimiter(deviceID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.PunchRate)
				slog.Warn("rate limit exceeded",
					slog.String("device_id", deviceID),
					slog.String("limit_type", "punch"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// PunchLimiterCount は現在管理されている打刻リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) PunchLimiterCount() int {
	rl.punchMu.RLock()
	defer rl.punchMu.RUnlock()
	return len(rl.punchLimiters)
}

// getOrCreateGeneralLimiter は端末のAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(deviceID string) *rate.Limiter {
	rl.generalMu.RLock()
	dl, exists := rl.generalLimiters[deviceID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		dl.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return dl.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if dl, exists := rl.generalLimiters[deviceID]; exists {
		dl.lastAccess = time.Now()
		return dl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[deviceID] = &deviceLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreatePunchLimiter は端末の打刻リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreatePunchLimiter(deviceID string) *rate.Limiter {
	rl.punchMu.RLock()
	dl, exists := rl.punchLimiters[deviceID]
	rl.punchMu.RUnlock()

	if exists {
		rl.punchMu.Lock()
		dl.lastAccess = time.Now()
		rl.punchMu.Unlock()
		return dl.limiter
	}

	rl.punchMu.Lock()
	defer rl.punchMu.Unlock()

	// ダブルチェック
	if dl, exists := rl.punchLimiters[deviceID]; exists {
		dl.lastAccess = time.Now()
		return dl.limiter
	}

	limiter := rate.NewLimiter(rl.config.PunchRate, rl.config.PunchBurst)
	rl.punchLimiters[deviceID] = &deviceLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for deviceID, dl := range rl.generalLimiters {
		if now.Sub(dl.lastAccess) > ttl {
			delete(rl.generalLimiters, deviceID)
		}
	}
	rl.generalMu.Unlock()

	rl.punchMu.Lock()
	for deviceID, dl := range rl.punchLimiters {
		if now.Sub(dl.lastAccess) > ttl {
			delete(rl.punchLimiters, deviceID)
		}
	}
	rl.punchMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "RATE_LIMIT_EXCEEDED",
		"message":  "リクエストが多すぎます。",
		"category": "system",
		"action":   "しばらく待ってから再度お試しください。",
	})
}
