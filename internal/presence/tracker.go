package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"studycircle-backend/internal/models"
)

var (
	// ErrNotAMember is returned when no membership row exists for the
	// (group, user) pair. Joining a group is handled upstream; the
	// presence core never creates memberships.
	ErrNotAMember = errors.New("not a member of this group")

	// ErrStaleWrite means exit's read-after-write check found the row
	// still active after both the normal and the forceful update.
	ErrStaleWrite = errors.New("presence write did not apply")
)

// MembershipStore is the slice of the backing store the tracker needs.
// Implementations must return ErrNotAMember from Get when no row exists.
type MembershipStore interface {
	Get(ctx context.Context, groupID, userID uuid.UUID) (*models.Membership, error)

	// SetActive opens a session: is_active=true, joined_at=now,
	// last_active_at=now, total_study_time=total.
	SetActive(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error

	// Touch refreshes last_active_at only.
	Touch(ctx context.Context, groupID, userID uuid.UUID, now time.Time) error

	// CloseSession ends the open session conditionally (WHERE is_active);
	// ForceCloseSession writes the same fields unconditionally and is the
	// fallback path when the conditional update does not stick.
	CloseSession(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error
	ForceCloseSession(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error

	Delete(ctx context.Context, groupID, userID uuid.UUID) error
}

// Tracker owns the online/offline transitions for group members. It
// performs no fan-out itself; subscribers learn about changes through
// the store's change notifications.
type Tracker struct {
	store MembershipStore
	now   func() time.Time
}

func NewTracker(store MembershipStore) *Tracker {
	return &Tracker{
		store: store,
		now:   time.Now,
	}
}

// Enter opens an online session. If the member is already active the
// still-open session is folded into the total first, so re-entering
// never discards accrued time.
func (t *Tracker) Enter(ctx context.Context, groupID, userID uuid.UUID) (*models.Membership, error) {
	m, err := t.store.Get(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	total := m.TotalStudyTime
	if m.IsActive {
		total = FoldSession(total, SessionSeconds(m.JoinedAt, now))
	}

	if err := t.store.SetActive(ctx, groupID, userID, total, now); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	m.IsActive = true
	m.JoinedAt = now
	m.LastActiveAt = now
	m.TotalStudyTime = total
	return m, nil
}

// Heartbeat refreshes last_active_at only. It never touches joined_at
// or the accumulated total, and is safe to call concurrently from
// multiple clients of the same user.
func (t *Tracker) Heartbeat(ctx context.Context, groupID, userID uuid.UUID) error {
	return t.store.Touch(ctx, groupID, userID, t.now())
}

// Exit closes the open session and folds its elapsed time into the
// total. Idempotent: exiting an already-offline member is a no-op.
// After writing, the row is re-read; if the update did not apply the
// forceful path is tried once before giving up.
func (t *Tracker) Exit(ctx context.Context, groupID, userID uuid.UUID) error {
	m, err := t.store.Get(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return nil
	}

	now := t.now()
	total := FoldSession(m.TotalStudyTime, SessionSeconds(m.JoinedAt, now))

	if err := t.store.CloseSession(ctx, groupID, userID, total, now); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	// Read-after-write verification with one forceful retry.
	check, err := t.store.Get(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !check.IsActive {
		return nil
	}

	if err := t.store.ForceCloseSession(ctx, groupID, userID, total, now); err != nil {
		return fmt.Errorf("forceful close failed: %w", err)
	}

	check, err = t.store.Get(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if check.IsActive {
		log.Printf("presence: exit did not apply for user %s in group %s", userID, groupID)
		return ErrStaleWrite
	}
	return nil
}

// Leave exits and then removes the membership row entirely. A future
// Enter requires a fresh row and starts from a zero total.
func (t *Tracker) Leave(ctx context.Context, groupID, userID uuid.UUID) error {
	if err := t.Exit(ctx, groupID, userID); err != nil && !errors.Is(err, ErrStaleWrite) {
		return err
	}
	return t.store.Delete(ctx, groupID, userID)
}
