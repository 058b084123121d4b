package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// Admin
	AdminToken string

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitPunch   int

	// Report
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	ReportRecipients []string
	ReportWeekday    time.Weekday
	ReportHour       int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.MongoURI = os.Getenv("MONGO_URI")
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MongoDatabase = getEnvString("MONGO_DATABASE", "kintai")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN") // 空の場合は管理APIを無効化する
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPunch = getEnvInt("RATE_LIMIT_PUNCH", 10)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "smtp.gmail.com")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 465)
	if cfg.SMTPPort < 1 || cfg.SMTPPort > 65535 {
		return nil, fmt.Errorf("invalid SMTP_PORT: %d", cfg.SMTPPort)
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.ReportRecipients = splitRecipients(os.Getenv("REPORT_RECIPIENTS"))

	weekday, err := parseWeekday(getEnvString("REPORT_WEEKDAY", "Sunday"))
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_WEEKDAY: %w", err)
	}
	cfg.ReportWeekday = weekday

	cfg.ReportHour = getEnvInt("REPORT_HOUR", 18)
	if cfg.ReportHour < 0 || cfg.ReportHour > 23 {
		return nil, fmt.Errorf("invalid REPORT_HOUR: %d (must be 0-23)", cfg.ReportHour)
	}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// splitRecipients はカンマ区切りの宛先リストを分割する。
// 空要素と前後の空白は取り除く。
func splitRecipients(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, addr := range strings.Split(s, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// parseWeekday は曜日名（英語、大文字小文字不問）をtime.Weekdayに変換する。
func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown weekday: %q", s)
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
