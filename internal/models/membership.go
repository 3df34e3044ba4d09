package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership is the durable presence record for one (group, user) pair.
// JoinedAt marks the start of the current online session and is only
// meaningful while IsActive is true. TotalStudyTime holds completed
// sessions only; the in-progress session is never included.
type Membership struct {
	GroupID        uuid.UUID `json:"group_id"`
	UserID         uuid.UUID `json:"user_id"`
	IsAdmin        bool      `json:"is_admin"`
	IsActive       bool      `json:"is_active"`
	JoinedAt       time.Time `json:"joined_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
	TotalStudyTime int64     `json:"total_study_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// MemberView is a Membership annotated for display: resolved name and a
// live study-time total (completed sessions plus the open one, if any).
type MemberView struct {
	UserID           uuid.UUID `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	IsAdmin          bool      `json:"is_admin"`
	IsActive         bool      `json:"is_active"`
	StudyTimeSeconds int64     `json:"study_time_seconds"`
	LastActiveAt     time.Time `json:"last_active_at"`
}
