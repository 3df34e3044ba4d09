package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studycircle-backend/internal/models"
	"studycircle-backend/internal/presence"
	"studycircle-backend/internal/realtime"
)

// MembershipRepo owns the group_members table and doubles as the
// store's change feed for presence: every successful write publishes a
// notification on the group's presence channel so subscribers re-read.
type MembershipRepo struct {
	pool     *pgxpool.Pool
	notifier realtime.Notifier
}

func NewMembershipRepo(pool *pgxpool.Pool, notifier realtime.Notifier) *MembershipRepo {
	return &MembershipRepo{pool: pool, notifier: notifier}
}

func (r *MembershipRepo) Create(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO group_members (group_id, user_id, is_admin, is_active, joined_at, last_active_at, total_study_time)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW(), 0)
		ON CONFLICT (group_id, user_id) DO NOTHING
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, query, m.GroupID, m.UserID, m.IsAdmin).Scan(&m.CreatedAt)
	if err != nil {
		return err
	}

	r.notifyPresence(m.GroupID, m.UserID, "join")
	return nil
}

func (r *MembershipRepo) Get(ctx context.Context, groupID, userID uuid.UUID) (*models.Membership, error) {
	m := &models.Membership{}
	query := `SELECT group_id, user_id, is_admin, is_active, joined_at, last_active_at, total_study_time, created_at
		FROM group_members WHERE group_id = $1 AND user_id = $2`

	err := r.pool.QueryRow(ctx, query, groupID, userID).Scan(
		&m.GroupID, &m.UserID, &m.IsAdmin, &m.IsActive,
		&m.JoinedAt, &m.LastActiveAt, &m.TotalStudyTime, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, presence.ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MembershipRepo) SetActive(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE group_members
		SET is_active = TRUE,
			joined_at = $3,
			last_active_at = $3,
			total_study_time = $4
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID, now, total)
	if err != nil {
		return err
	}

	r.notifyPresence(groupID, userID, "enter")
	return nil
}

func (r *MembershipRepo) Touch(ctx context.Context, groupID, userID uuid.UUID, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE group_members
		SET last_active_at = $3
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID, now)
	return err
}

func (r *MembershipRepo) CloseSession(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE group_members
		SET is_active = FALSE,
			last_active_at = $3,
			total_study_time = $4
		WHERE group_id = $1 AND user_id = $2 AND is_active = TRUE
	`, groupID, userID, now, total)
	if err != nil {
		return err
	}

	r.notifyPresence(groupID, userID, "exit")
	return nil
}

// ForceCloseSession is the fallback when the conditional close did not
// stick: same fields, no is_active predicate.
func (r *MembershipRepo) ForceCloseSession(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE group_members
		SET is_active = FALSE,
			last_active_at = $3,
			total_study_time = $4
		WHERE group_id = $1 AND user_id = $2
	`, groupID, userID, now, total)
	if err != nil {
		return err
	}

	r.notifyPresence(groupID, userID, "exit")
	return nil
}

func (r *MembershipRepo) Demote(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE group_members
		SET is_active = FALSE,
			last_active_at = $3,
			total_study_time = $4
		WHERE group_id = $1 AND user_id = $2 AND is_active = TRUE
	`, groupID, userID, now, total)
	if err != nil {
		return err
	}

	r.notifyPresence(groupID, userID, "timeout")
	return nil
}

func (r *MembershipRepo) Delete(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM group_members WHERE group_id = $1 AND user_id = $2",
		groupID, userID,
	)
	if err != nil {
		return err
	}

	r.notifyPresence(groupID, userID, "leave")
	return nil
}

func (r *MembershipRepo) ListActive(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error) {
	return r.list(ctx, `
		SELECT group_id, user_id, is_admin, is_active, joined_at, last_active_at, total_study_time, created_at
		FROM group_members
		WHERE group_id = $1 AND is_active = TRUE
	`, groupID)
}

func (r *MembershipRepo) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error) {
	return r.list(ctx, `
		SELECT group_id, user_id, is_admin, is_active, joined_at, last_active_at, total_study_time, created_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY total_study_time DESC, user_id ASC
	`, groupID)
}

func (r *MembershipRepo) CountByGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM group_members WHERE group_id = $1", groupID,
	).Scan(&count)
	return count, err
}

func (r *MembershipRepo) list(ctx context.Context, query string, groupID uuid.UUID) ([]models.Membership, error) {
	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(
			&m.GroupID, &m.UserID, &m.IsAdmin, &m.IsActive,
			&m.JoinedAt, &m.LastActiveAt, &m.TotalStudyTime, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// notifyPresence is best-effort: a lost notification only delays the
// next presence read until the reconciler's sweep fires.
func (r *MembershipRepo) notifyPresence(groupID, userID uuid.UUID, event string) {
	payload, _ := json.Marshal(map[string]string{
		"user_id": userID.String(),
		"event":   event,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := r.notifier.Publish(ctx, realtime.PresenceChannel(groupID), payload); err != nil {
		log.Printf("membership: failed to publish presence change for group %s: %v", groupID, err)
	}
}
