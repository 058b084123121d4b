package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker は依存ストアの死活確認関数。
type HealthChecker func(ctx context.Context) error

// healthCheckTimeout は各ストアの死活確認に許す時間。
const healthCheckTimeout = 2 * time.Second

// NewHealthHandler はPostgreSQLとMongoDBの接続を確認するヘルスチェックハンドラーを返す。
// GET /health
// 全ストアに到達できれば200、いずれかに失敗すれば503を返す。
func NewHealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checkers))

		for name, check := range checkers {
			if err := check(ctx); err != nil {
				slog.Error("health check failed",
					slog.String("component", name),
					slog.String("error", err.Error()),
				)
				components[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     statusLabel(status),
			"components": components,
		})
	}
}

func statusLabel(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "unavailable"
}
