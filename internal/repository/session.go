package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindActiveByOwner returns the owner's live session: not ended and
	// not yet past expiry at the database clock.
	FindActiveByOwner(ctx context.Context, ownerUserID string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// Extend advances expires_at by the given minutes if and only if the
	// session is still live. Returns nil without error when the guard
	// fails, so the caller can distinguish a lost race from a miss.
	Extend(ctx context.Context, id string, minutes int) (*model.Session, error)
	// End sets ended_at if it is still unset. Returns nil when the
	// session was already ended.
	End(ctx context.Context, id string, endedAt time.Time) (*model.Session, error)
	// CloseExpired sets ended_at = expires_at on every session abandoned
	// past its expiry without an explicit end.
	CloseExpired(ctx context.Context) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByOwner(ctx context.Context, ownerUserID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE owner_user_id = $1
		AND ended_at IS NULL
		AND expires_at > NOW()
		ORDER BY started_at DESC
		LIMIT 1
	`, ownerUserID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (owner_user_id, duration_minutes, latitude, longitude, started_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.OwnerUserID, params.DurationMinutes, params.Latitude, params.Longitude,
		params.StartedAt, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Extend(ctx context.Context, id string, minutes int) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			expires_at = expires_at + ($2 * interval '1 minute'),
			updated_at = NOW()
		WHERE id = $1
		AND ended_at IS NULL
		AND expires_at > NOW()
		RETURNING *
	`, id, minutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) End(ctx context.Context, id string, endedAt time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			ended_at = $2,
			updated_at = $2
		WHERE id = $1 AND ended_at IS NULL
		RETURNING *
	`, id, endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) CloseExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			ended_at = expires_at,
			updated_at = NOW()
		WHERE ended_at IS NULL
		AND expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
