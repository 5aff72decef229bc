package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/9thLevelSoftware/vlvt-ephemeral/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.Message, error)
	// FindByClientTempID returns a previously persisted send carrying
	// the same client temp id, for duplicate-delivery detection.
	FindByClientTempID(ctx context.Context, matchID, senderID, clientTempID string) (*model.Message, error)
	// FindByMatchBefore returns up to limit messages for the match,
	// newest first, strictly older than before when supplied.
	FindByMatchBefore(ctx context.Context, matchID string, before *time.Time, limit int) ([]model.Message, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	// DeleteForPurgeableMatches removes messages owned by unconverted
	// matches whose expiry is older than the cutoff. Runs ahead of the
	// match delete for foreign-key safety.
	DeleteForPurgeableMatches(ctx context.Context, cutoff time.Time) (int64, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindByClientTempID(ctx context.Context, matchID, senderID, clientTempID string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		SELECT * FROM messages
		WHERE match_id = $1 AND sender_id = $2 AND client_temp_id = $3
	`, matchID, senderID, clientTempID)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindByMatchBefore(ctx context.Context, matchID string, before *time.Time, limit int) ([]model.Message, error) {
	var msgs []model.Message
	if before != nil {
		err := r.db.SelectContext(ctx, &msgs, `
			SELECT * FROM messages
			WHERE match_id = $1 AND created_at < $2
			ORDER BY created_at DESC
			LIMIT $3
		`, matchID, *before, limit)
		return msgs, err
	}
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE match_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, matchID, limit)
	return msgs, err
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (match_id, sender_id, text, client_temp_id)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.MatchID, params.SenderID, params.Text, params.ClientTempID)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) DeleteForPurgeableMatches(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM messages
		USING matches
		WHERE messages.match_id = matches.id
		AND matches.expires_at < $1
		AND matches.converted_to_match_id IS NULL
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
