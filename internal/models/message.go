package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one chat entry in a group. UserID is nil for
// system-authored messages. Rows are immutable once written.
type Message struct {
	ID              uuid.UUID  `json:"id"`
	GroupID         uuid.UUID  `json:"group_id"`
	UserID          *uuid.UUID `json:"user_id"`
	Text            string     `json:"text"`
	IsSystemMessage bool       `json:"is_system_message"`
	CreatedAt       time.Time  `json:"created_at"`
}

// MessageView is a Message with the sender's display name resolved.
type MessageView struct {
	ID              uuid.UUID  `json:"id"`
	GroupID         uuid.UUID  `json:"group_id"`
	UserID          *uuid.UUID `json:"user_id"`
	AuthorName      string     `json:"author_name"`
	Text            string     `json:"text"`
	IsSystemMessage bool       `json:"is_system_message"`
	CreatedAt       time.Time  `json:"created_at"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}
