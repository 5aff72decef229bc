package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
)

type MatchRepository interface {
	FindByID(ctx context.Context, id string) (*model.Match, error)
	// FindByPair looks up the row for a normalized unordered pair.
	FindByPair(ctx context.Context, userIDA, userIDB string) (*model.Match, error)
	Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error)
	// Decline sets declined_by if it is still unset. Returns nil without
	// error when another decline already won.
	Decline(ctx context.Context, id string, byUserID string) (*model.Match, error)
	// Convert sets converted_to_match_id if it is still unset. Returns
	// nil without error when a conversion already won.
	Convert(ctx context.Context, id string, permanentMatchID string) (*model.Match, error)
	// DeletePurgeable removes unconverted matches whose expiry is older
	// than the cutoff. Their messages must be deleted first.
	DeletePurgeable(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MatchRepository
}

type matchDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type matchRepo struct {
	db matchDB
}

func NewMatchRepository(db *sqlx.DB) MatchRepository {
	return &matchRepo{db: db}
}

func (r *matchRepo) WithTx(tx *sqlx.Tx) MatchRepository {
	return &matchRepo{db: tx}
}

func (r *matchRepo) FindByID(ctx context.Context, id string) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `SELECT * FROM matches WHERE id = $1`, id)
	return HandleNotFound(&match, err)
}

func (r *matchRepo) FindByPair(ctx context.Context, userIDA, userIDB string) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		SELECT * FROM matches
		WHERE user_id_a = $1 AND user_id_b = $2
	`, userIDA, userIDB)
	return HandleNotFound(&match, err)
}

func (r *matchRepo) Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		INSERT INTO matches (user_id_a, user_id_b, expires_at)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.UserIDA, params.UserIDB, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *matchRepo) Decline(ctx context.Context, id string, byUserID string) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		UPDATE matches SET declined_by = $2
		WHERE id = $1 AND declined_by IS NULL
		RETURNING *
	`, id, byUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *matchRepo) Convert(ctx context.Context, id string, permanentMatchID string) (*model.Match, error) {
	var match model.Match
	err := r.db.GetContext(ctx, &match, `
		UPDATE matches SET converted_to_match_id = $2
		WHERE id = $1 AND converted_to_match_id IS NULL
		RETURNING *
	`, id, permanentMatchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *matchRepo) DeletePurgeable(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM matches
		WHERE expires_at < $1
		AND converted_to_match_id IS NULL
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
