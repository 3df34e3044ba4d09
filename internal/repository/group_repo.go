package repository

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studycircle-backend/internal/models"
)

type GroupRepo struct {
	pool *pgxpool.Pool
}

func NewGroupRepo(pool *pgxpool.Pool) *GroupRepo {
	return &GroupRepo{pool: pool}
}

func (r *GroupRepo) Create(ctx context.Context, group *models.Group) error {
	query := `
		INSERT INTO groups (id, name, access_code, max_members, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	group.ID = uuid.New()

	code, err := generateAccessCode()
	if err != nil {
		return err
	}
	group.AccessCode = code

	return r.pool.QueryRow(ctx, query,
		group.ID, group.Name, group.AccessCode, group.MaxMembers, group.CreatedBy,
	).Scan(&group.CreatedAt)
}

func (r *GroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	group := &models.Group{}
	query := `SELECT id, name, access_code, max_members, created_by, created_at
		FROM groups WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&group.ID, &group.Name, &group.AccessCode, &group.MaxMembers,
		&group.CreatedBy, &group.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (r *GroupRepo) GetByAccessCode(ctx context.Context, code string) (*models.Group, error) {
	group := &models.Group{}
	query := `SELECT id, name, access_code, max_members, created_by, created_at
		FROM groups WHERE access_code = $1`

	err := r.pool.QueryRow(ctx, query, code).Scan(
		&group.ID, &group.Name, &group.AccessCode, &group.MaxMembers,
		&group.CreatedBy, &group.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// generateAccessCode returns a 6-character join code. Collisions are
// caught by the unique index on groups.access_code.
func generateAccessCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate access code: %w", err)
	}
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b), nil
}
