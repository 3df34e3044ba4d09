package models

import (
	"time"

	"github.com/google/uuid"
)

type Group struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	AccessCode string    `json:"access_code"`
	MaxMembers int       `json:"max_members"`
	CreatedBy  uuid.UUID `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateGroupRequest struct {
	Name       string `json:"name"`
	MaxMembers int    `json:"max_members"`
}

type JoinGroupRequest struct {
	AccessCode string `json:"access_code"`
}
