// Package model はドメインモデルを定義する。
package model

import "time"

// Account は勤怠を記録できる従業員アカウントを表す。
// アカウントの登録・削除は管理者が直接DBに対して行う運用のため、
// 本体のAPIには参照系しか存在しない。
type Account struct {
	ID          int64
	Username    string
	DisplayName string
	CreatedAt   time.Time
}

// Device は打刻を許可された端末を表す。
// DeviceIDは端末側のCookieに保存されるUUID。
// Activeがfalseの端末は許可リストから外れた扱いになる。
type Device struct {
	DeviceID  string
	Label     string
	Active    bool
	CreatedAt time.Time
}
