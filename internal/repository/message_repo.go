package repository

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studycircle-backend/internal/models"
	"studycircle-backend/internal/realtime"
)

// MessageRepo owns the messages table, append-only from the core's
// point of view. Each successful insert publishes the new row on the
// group's messages channel.
type MessageRepo struct {
	pool     *pgxpool.Pool
	notifier realtime.Notifier
}

func NewMessageRepo(pool *pgxpool.Pool, notifier realtime.Notifier) *MessageRepo {
	return &MessageRepo{pool: pool, notifier: notifier}
}

func (r *MessageRepo) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, group_id, user_id, text, is_system_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	msg.ID = uuid.New()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	err := r.pool.QueryRow(ctx, query,
		msg.ID, msg.GroupID, msg.UserID, msg.Text, msg.IsSystemMessage, msg.CreatedAt,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return err
	}

	r.notifyMessage(msg)
	return nil
}

// ListRecent returns the newest limit messages in ascending created_at
// order.
func (r *MessageRepo) ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Message, error) {
	query := `
		SELECT id, group_id, user_id, text, is_system_message, created_at
		FROM (
			SELECT id, group_id, user_id, text, is_system_message, created_at
			FROM messages
			WHERE group_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Text, &m.IsSystemMessage, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepo) notifyMessage(msg *models.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := r.notifier.Publish(ctx, realtime.MessagesChannel(msg.GroupID), payload); err != nil {
		log.Printf("messages: failed to publish message %s for group %s: %v", msg.ID, msg.GroupID, err)
	}
}
