package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/kintai/internal/model"
)

// PostgresDeviceRepo はPostgreSQLを使用した端末許可リストリポジトリ。
type PostgresDeviceRepo struct {
	db *sql.DB
}

// NewPostgresDeviceRepo はPostgresDeviceRepoを生成する。
func NewPostgresDeviceRepo(db *sql.DB) *PostgresDeviceRepo {
	return &PostgresDeviceRepo{db: db}
}

// FindByDeviceID は指定IDの端末を取得する。見つからない場合はnilを返す。
func (r *PostgresDeviceRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	device := &model.Device{}
	err := r.db.QueryRowContext(ctx,
		`SELECT device_id, label, active, created_at FROM allowed_devices WHERE device_id = $1`,
		deviceID,
	).Scan(&device.DeviceID, &device.Label, &device.Active, &device.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find device by ID: %w", err)
	}

	return device, nil
}

// Upsert は端末を登録する。既存の場合はラベルとactiveフラグを更新する。
func (r *PostgresDeviceRepo) Upsert(ctx context.Context, device *model.Device) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allowed_devices (device_id, label, active)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (device_id)
		 DO UPDATE SET label = EXCLUDED.label, active = EXCLUDED.active`,
		device.DeviceID, device.Label, device.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// Deactivate は指定IDの端末を許可リストから外す。
// 端末が存在しない場合もエラーにはしない（冪等）。
func (r *PostgresDeviceRepo) Deactivate(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE allowed_devices SET active = FALSE WHERE device_id = $1`,
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate device: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DeviceRepository = (*PostgresDeviceRepo)(nil)
