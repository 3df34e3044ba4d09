// Package chat persists group messages and prepares them for display.
// It never pushes to live subscribers directly: delivery rides on the
// store's change notifications, which the presence manager fans out.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studycircle-backend/internal/models"
)

// MessageStore is the append-only slice of the backing store the bus
// writes and reads. ListRecent returns at most limit rows, ascending
// by created_at.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Message, error)
}

// NameResolver matches presence.NameResolver; declared here so the bus
// stays decoupled from the presence package.
type NameResolver interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

type Bus struct {
	messages MessageStore
	names    NameResolver
	now      func() time.Time
}

func NewBus(messages MessageStore, names NameResolver) *Bus {
	return &Bus{
		messages: messages,
		names:    names,
		now:      time.Now,
	}
}

// Send appends a user message. Membership is not re-validated here;
// the caller is already authenticated and admission happened at join
// time.
func (b *Bus) Send(ctx context.Context, groupID, userID uuid.UUID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text is empty")
	}

	msg := &models.Message{
		GroupID:         groupID,
		UserID:          &userID,
		Text:            text,
		IsSystemMessage: false,
		CreatedAt:       b.now(),
	}
	if err := b.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	return msg, nil
}

// SendSystem appends a system-authored message (no user id).
func (b *Bus) SendSystem(ctx context.Context, groupID uuid.UUID, text string) (*models.Message, error) {
	msg := &models.Message{
		GroupID:         groupID,
		UserID:          nil,
		Text:            text,
		IsSystemMessage: true,
		CreatedAt:       b.now(),
	}
	if err := b.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist system message: %w", err)
	}
	return msg, nil
}

// GroupMessages returns the most recent limit messages in ascending
// created_at order, each annotated with the sender's display name. A
// failed name lookup degrades to a placeholder instead of failing the
// read.
func (b *Bus) GroupMessages(ctx context.Context, groupID uuid.UUID, limit int) ([]models.MessageView, error) {
	if limit <= 0 {
		limit = 50
	}

	msgs, err := b.messages.ListRecent(ctx, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, models.MessageView{
			ID:              msg.ID,
			GroupID:         msg.GroupID,
			UserID:          msg.UserID,
			AuthorName:      b.authorName(ctx, &msg),
			Text:            msg.Text,
			IsSystemMessage: msg.IsSystemMessage,
			CreatedAt:       msg.CreatedAt,
		})
	}
	return views, nil
}

func (b *Bus) authorName(ctx context.Context, msg *models.Message) string {
	if msg.IsSystemMessage || msg.UserID == nil {
		return models.SystemAuthorName
	}
	name, err := b.names.DisplayName(ctx, *msg.UserID)
	if err != nil {
		return models.PlaceholderName(*msg.UserID)
	}
	return name
}
