package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/model"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// PutReaction inserts the user's reaction. One active reaction per user per
// message: a second reaction by the same user replaces the first.
func (r *ReactionRepository) PutReaction(ctx context.Context, rc *model.Reaction) error {
	defer logger.DeferLogDuration("reaction.PutReaction", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reactions (id, message_id, user_id, reaction, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (message_id, user_id) DO UPDATE
		 SET reaction = EXCLUDED.reaction, created_at = EXCLUDED.created_at`,
		rc.ID, rc.MessageID, rc.UserID, rc.Reaction, rc.CreatedAt,
	)
	if err != nil {
		return wrapErr("reactionRepo.PutReaction", err)
	}
	return nil
}

func (r *ReactionRepository) MessageReactions(ctx context.Context, messageID string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.MessageReactions", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, message_id, user_id, reaction, created_at
		 FROM message_reactions
		 WHERE message_id = $1
		 ORDER BY created_at`, messageID,
	)
	if err != nil {
		return nil, wrapErr("reactionRepo.MessageReactions query", err)
	}
	defer rows.Close()

	reactions := make([]model.Reaction, 0, 8)
	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.ID, &rc.MessageID, &rc.UserID, &rc.Reaction, &rc.CreatedAt); err != nil {
			return nil, wrapErr("reactionRepo.MessageReactions scan", err)
		}
		reactions = append(reactions, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("reactionRepo.MessageReactions rows", err)
	}
	return reactions, nil
}

func (r *ReactionRepository) DeleteReaction(ctx context.Context, messageID, userID string) error {
	defer logger.DeferLogDuration("reaction.DeleteReaction", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`,
		messageID, userID,
	)
	if err != nil {
		return wrapErr("reactionRepo.DeleteReaction", err)
	}
	return nil
}
