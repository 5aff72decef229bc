package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
)

type DeclineRepository interface {
	Create(ctx context.Context, params model.CreateDeclineEntryParams) (*model.DeclineEntry, error)
	// FindActiveByPair returns the newest suppression entry for the
	// normalized pair created at or after since, if any.
	FindActiveByPair(ctx context.Context, userIDA, userIDB string, since time.Time) (*model.DeclineEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type declineRepo struct {
	db *sqlx.DB
}

func NewDeclineRepository(db *sqlx.DB) DeclineRepository {
	return &declineRepo{db: db}
}

func (r *declineRepo) Create(ctx context.Context, params model.CreateDeclineEntryParams) (*model.DeclineEntry, error) {
	var entry model.DeclineEntry
	err := r.db.GetContext(ctx, &entry, `
		INSERT INTO decline_entries (match_id, user_id_a, user_id_b)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.MatchID, params.UserIDA, params.UserIDB)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *declineRepo) FindActiveByPair(ctx context.Context, userIDA, userIDB string, since time.Time) (*model.DeclineEntry, error) {
	var entry model.DeclineEntry
	err := r.db.GetContext(ctx, &entry, `
		SELECT * FROM decline_entries
		WHERE user_id_a = $1 AND user_id_b = $2
		AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, userIDA, userIDB, since)
	return HandleNotFound(&entry, err)
}

func (r *declineRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM decline_entries WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
