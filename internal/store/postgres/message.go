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

const messageCols = `id, chat_id, sender_id, COALESCE(recipient_id::text, ''), text, has_attachments, edited_at, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// scanMessage scans a row into model.Message (column order matches messageCols).
func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.RecipientID, &m.Text, &m.HasAttachments, &m.EditedAt, &m.CreatedAt)
}

func (r *MessageRepository) CreateMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.CreateMessage", time.Now())()
	var recipient any
	if m.RecipientID != "" {
		recipient = m.RecipientID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, recipient_id, text, has_attachments, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ChatID, m.SenderID, recipient, m.Text, m.HasAttachments, m.CreatedAt,
	)
	if err != nil {
		return wrapErr("msgRepo.CreateMessage", err)
	}
	return nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetMessage", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr("msgRepo.GetMessage", err)
	}
	return m, nil
}

func (r *MessageRepository) ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ChatMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE chat_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, chatID, limit, offset,
	)
	if err != nil {
		return nil, wrapErr("msgRepo.ChatMessages query", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, wrapErr("msgRepo.ChatMessages scan", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("msgRepo.ChatMessages rows", err)
	}
	return messages, nil
}

func (r *MessageRepository) UpdateMessage(ctx context.Context, id, text string, hasAttachments bool, editedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateMessage", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET text = $1, has_attachments = $2, edited_at = $3 WHERE id = $4`,
		text, hasAttachments, editedAt, id,
	)
	if err != nil {
		return wrapErr("msgRepo.UpdateMessage", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMessage hard-deletes the message; statuses and reactions cascade at the
// schema level. Deleting an absent message succeeds.
func (r *MessageRepository) DeleteMessage(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.DeleteMessage", time.Now())()
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return wrapErr("msgRepo.DeleteMessage", err)
	}
	return nil
}
