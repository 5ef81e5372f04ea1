package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/model"
)

type StatusRepository struct {
	pool *pgxpool.Pool
}

func NewStatusRepository(pool *pgxpool.Pool) *StatusRepository {
	return &StatusRepository{pool: pool}
}

// UpsertStatus writes the per-(message, user) delivery state. The WHERE clause
// on the conflict branch is a row-level compare-and-swap: a state that does not
// rank above the stored one leaves the row untouched, so concurrent
// delivered/read acknowledgements cannot regress each other.
func (r *StatusRepository) UpsertStatus(ctx context.Context, s *model.MessageStatus) error {
	defer logger.DeferLogDuration("status.UpsertStatus", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_statuses (message_id, user_id, state, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (message_id, user_id) DO UPDATE
		 SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
		 WHERE array_position(ARRAY['sent','delivered','read'], EXCLUDED.state)
		     > array_position(ARRAY['sent','delivered','read'], message_statuses.state)`,
		s.MessageID, s.UserID, s.State, s.UpdatedAt,
	)
	if err != nil {
		return wrapErr("statusRepo.UpsertStatus", err)
	}
	return nil
}

func (r *StatusRepository) MessageStatuses(ctx context.Context, messageID string) ([]model.MessageStatus, error) {
	defer logger.DeferLogDuration("status.MessageStatuses", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id, state, updated_at
		 FROM message_statuses
		 WHERE message_id = $1
		 ORDER BY user_id`, messageID,
	)
	if err != nil {
		return nil, wrapErr("statusRepo.MessageStatuses query", err)
	}
	defer rows.Close()

	statuses := make([]model.MessageStatus, 0, 8)
	for rows.Next() {
		var s model.MessageStatus
		if err := rows.Scan(&s.MessageID, &s.UserID, &s.State, &s.UpdatedAt); err != nil {
			return nil, wrapErr("statusRepo.MessageStatuses scan", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("statusRepo.MessageStatuses rows", err)
	}
	return statuses, nil
}
