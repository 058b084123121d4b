// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/kintai/internal/model"
)

const deviceCookieName = "device_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// deviceIDContextKey はリクエストコンテキストに端末IDを格納するためのキー。
var deviceIDContextKey = contextKey("device_id")

// DeviceFinder は端末の検索に必要なインターフェース。
// repository.DeviceRepositoryの部分集合として定義する。
type DeviceFinder interface {
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
}

// NewDeviceIdentityMiddleware は端末IDのCookieを読み取り、
// 未設定の場合は新規UUIDを発行して設定するミドルウェアを返す。
// 端末IDをリクエストコンテキストに注入するだけで、許可判定は行わない。
// 許可判定が必要なルートにはNewDeviceGateMiddlewareを重ねる。
func NewDeviceIdentityMiddleware(cookieSecure bool, cookieDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := ""

			cookie, err := r.Cookie(deviceCookieName)
			if err == nil && cookie.Value != "" {
				if _, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
					deviceID = cookie.Value
				}
			}

			// Cookieが無い、または値がUUIDでない場合は発行し直す
			if deviceID == "" {
				deviceID = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     deviceCookieName,
					Value:    deviceID,
					Path:     "/",
					Domain:   cookieDomain,
					MaxAge:   86400 * 365, // 端末の識別子なので長期間保持する
					HttpOnly: true,
					Secure:   cookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), deviceIDContextKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewDeviceGateMiddleware は端末が許可リストに登録済みかを検証するミドルウェアを返す。
// 未許可の端末には403と端末IDを含むエラーレスポンスを返す。
// NewDeviceIdentityMiddlewareの後に配置すること。
func NewDeviceGateMiddleware(deviceFinder DeviceFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := DeviceIDFromContext(r.Context())
			if err != nil {
				WriteInternalServerError(w)
				return
			}

			device, err := deviceFinder.FindByDeviceID(r.Context(), deviceID)
			if err != nil {
				slog.Error("failed to find device",
					slog.String("device_id", deviceID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if device == nil || !device.Active {
				slog.Warn("device not allowed",
					slog.String("device_id", deviceID),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewDeviceNotAllowedError(deviceID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DeviceIDFromContext はリクエストコンテキストから端末IDを取得する。
// 端末識別ミドルウェアを通過したリクエストでのみ有効。
func DeviceIDFromContext(ctx context.Context) (string, error) {
	deviceID, ok := ctx.Value(deviceIDContextKey).(string)
	if !ok || deviceID == "" {
		return "", fmt.Errorf("device ID not found in context")
	}
	return deviceID, nil
}

// ContextWithDeviceID はコンテキストに端末IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey, deviceID)
}
