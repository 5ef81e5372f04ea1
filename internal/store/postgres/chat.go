package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func (r *ChatRepository) CreateChat(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.CreateChat", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, chat_type, name, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.ChatType, c.Name, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return wrapErr("chatRepo.CreateChat", err)
	}
	return nil
}

func (r *ChatRepository) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetChat", time.Now())()
	c := &model.Chat{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, chat_type, name, created_by, created_at FROM chats WHERE id = $1`, id,
	).Scan(&c.ID, &c.ChatType, &c.Name, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("chatRepo.GetChat", err)
	}
	return c, nil
}

// DeleteChat removes the chat; participants and messages cascade at the schema level.
func (r *ChatRepository) DeleteChat(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("chat.DeleteChat", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return wrapErr("chatRepo.DeleteChat", err)
	}
	return nil
}

func (r *ChatRepository) AddParticipant(ctx context.Context, p *model.Participant) error {
	defer logger.DeferLogDuration("chat.AddParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_participants (chat_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)`,
		p.ChatID, p.UserID, p.Role, p.JoinedAt,
	)
	if err != nil {
		return wrapErr("chatRepo.AddParticipant", err)
	}
	return nil
}

func (r *ChatRepository) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	defer logger.DeferLogDuration("chat.RemoveParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM chat_participants WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID,
	)
	if err != nil {
		return wrapErr("chatRepo.RemoveParticipant", err)
	}
	return nil
}

func (r *ChatRepository) ParticipantIDs(ctx context.Context, chatID string) ([]string, error) {
	defer logger.DeferLogDuration("chat.ParticipantIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM chat_participants WHERE chat_id = $1`, chatID,
	)
	if err != nil {
		return nil, wrapErr("chatRepo.ParticipantIDs query", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("chatRepo.ParticipantIDs scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("chatRepo.ParticipantIDs rows", err)
	}
	return ids, nil
}

func (r *ChatRepository) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	defer logger.DeferLogDuration("chat.IsParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2)`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("chatRepo.IsParticipant", err)
	}
	return exists, nil
}
