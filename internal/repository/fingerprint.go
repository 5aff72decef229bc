package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
)

type DeviceFingerprintRepository interface {
	Create(ctx context.Context, params model.CreateDeviceFingerprintParams) (*model.DeviceFingerprint, error)
	FindBySessionID(ctx context.Context, sessionID string) ([]model.DeviceFingerprint, error)
	// DeleteOrphaned removes fingerprints whose session_id no longer
	// resolves to an existing session row.
	DeleteOrphaned(ctx context.Context) (int64, error)
}

type fingerprintRepo struct {
	db *sqlx.DB
}

func NewDeviceFingerprintRepository(db *sqlx.DB) DeviceFingerprintRepository {
	return &fingerprintRepo{db: db}
}

func (r *fingerprintRepo) Create(ctx context.Context, params model.CreateDeviceFingerprintParams) (*model.DeviceFingerprint, error) {
	var fp model.DeviceFingerprint
	err := r.db.GetContext(ctx, &fp, `
		INSERT INTO device_fingerprints (session_id, fingerprint_hash)
		VALUES ($1, $2)
		RETURNING *
	`, params.SessionID, params.FingerprintHash)
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

func (r *fingerprintRepo) FindBySessionID(ctx context.Context, sessionID string) ([]model.DeviceFingerprint, error) {
	var fps []model.DeviceFingerprint
	err := r.db.SelectContext(ctx, &fps, `
		SELECT * FROM device_fingerprints
		WHERE session_id = $1
		ORDER BY created_at DESC
	`, sessionID)
	return fps, err
}

func (r *fingerprintRepo) DeleteOrphaned(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM device_fingerprints df
		WHERE df.session_id IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM sessions s WHERE s.id = df.session_id)
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
