package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"studycircle-backend/internal/models"
)

// fakeMembershipStore is an in-memory MembershipStore. Conditional
// writes can be made to silently not apply to exercise the tracker's
// read-after-write verification.
type fakeMembershipStore struct {
	rows map[string]*models.Membership

	dropCloseSession      bool
	dropForceCloseSession bool
	forceCloseCalls       int
}

func newFakeMembershipStore() *fakeMembershipStore {
	return &fakeMembershipStore{rows: make(map[string]*models.Membership)}
}

func storeKey(groupID, userID uuid.UUID) string {
	return groupID.String() + "/" + userID.String()
}

func (s *fakeMembershipStore) seed(groupID, userID uuid.UUID) *models.Membership {
	m := &models.Membership{GroupID: groupID, UserID: userID}
	s.rows[storeKey(groupID, userID)] = m
	return m
}

func (s *fakeMembershipStore) Get(ctx context.Context, groupID, userID uuid.UUID) (*models.Membership, error) {
	m, ok := s.rows[storeKey(groupID, userID)]
	if !ok {
		return nil, ErrNotAMember
	}
	copied := *m
	return &copied, nil
}

func (s *fakeMembershipStore) SetActive(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error {
	m, ok := s.rows[storeKey(groupID, userID)]
	if !ok {
		return ErrNotAMember
	}
	m.IsActive = true
	m.JoinedAt = now
	m.LastActiveAt = now
	m.TotalStudyTime = total
	return nil
}

func (s *fakeMembershipStore) Touch(ctx context.Context, groupID, userID uuid.UUID, now time.Time) error {
	if m, ok := s.rows[storeKey(groupID, userID)]; ok {
		m.LastActiveAt = now
	}
	return nil
}

func (s *fakeMembershipStore) CloseSession(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error {
	if s.dropCloseSession {
		return nil
	}
	m, ok := s.rows[storeKey(groupID, userID)]
	if !ok || !m.IsActive {
		return nil
	}
	m.IsActive = false
	m.LastActiveAt = now
	m.TotalStudyTime = total
	return nil
}

func (s *fakeMembershipStore) ForceCloseSession(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error {
	s.forceCloseCalls++
	if s.dropForceCloseSession {
		return nil
	}
	m, ok := s.rows[storeKey(groupID, userID)]
	if !ok {
		return nil
	}
	m.IsActive = false
	m.LastActiveAt = now
	m.TotalStudyTime = total
	return nil
}

func (s *fakeMembershipStore) Delete(ctx context.Context, groupID, userID uuid.UUID) error {
	delete(s.rows, storeKey(groupID, userID))
	return nil
}

func newTestTracker(store *fakeMembershipStore, start time.Time) (*Tracker, *time.Time) {
	now := start
	tr := NewTracker(store)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestTracker_EnterThenExit_AccumulatesElapsed(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := newFakeMembershipStore()
	store.seed(groupID, userID)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(store, start)

	ctx := context.Background()
	if _, err := tr.Enter(ctx, groupID, userID); err != nil {
		t.Fatalf("Enter failed: %v", err)
	}

	// Heartbeats at t=10s and t=20s must not touch the session start.
	*now = start.Add(10 * time.Second)
	if err := tr.Heartbeat(ctx, groupID, userID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	*now = start.Add(20 * time.Second)
	if err := tr.Heartbeat(ctx, groupID, userID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	*now = start.Add(35 * time.Second)
	if err := tr.Exit(ctx, groupID, userID); err != nil {
		t.Fatalf("Exit failed: %v", err)
	}

	m, _ := store.Get(ctx, groupID, userID)
	if m.TotalStudyTime != 35 {
		t.Errorf("Expected total_study_time 35, got %d", m.TotalStudyTime)
	}
	if m.IsActive {
		t.Error("Expected member to be offline after exit")
	}
}

func TestTracker_ExitIsIdempotent(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := newFakeMembershipStore()
	store.seed(groupID, userID)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(store, start)
	ctx := context.Background()

	tr.Enter(ctx, groupID, userID)
	*now = start.Add(60 * time.Second)
	if err := tr.Exit(ctx, groupID, userID); err != nil {
		t.Fatalf("first Exit failed: %v", err)
	}

	m, _ := store.Get(ctx, groupID, userID)
	totalAfterFirst := m.TotalStudyTime

	*now = start.Add(120 * time.Second)
	if err := tr.Exit(ctx, groupID, userID); err != nil {
		t.Fatalf("second Exit failed: %v", err)
	}

	m, _ = store.Get(ctx, groupID, userID)
	if m.TotalStudyTime != totalAfterFirst {
		t.Errorf("second exit changed total: %d → %d", totalAfterFirst, m.TotalStudyTime)
	}
}

func TestTracker_ReEnterFoldsOpenSession(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := newFakeMembershipStore()
	store.seed(groupID, userID)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(store, start)
	ctx := context.Background()

	tr.Enter(ctx, groupID, userID)

	// A second enter (new tab, reconnect) must bank the open session
	// instead of discarding it.
	*now = start.Add(100 * time.Second)
	if _, err := tr.Enter(ctx, groupID, userID); err != nil {
		t.Fatalf("re-enter failed: %v", err)
	}

	m, _ := store.Get(ctx, groupID, userID)
	if m.TotalStudyTime != 100 {
		t.Errorf("Expected 100s banked on re-enter, got %d", m.TotalStudyTime)
	}
	if !m.JoinedAt.Equal(start.Add(100 * time.Second)) {
		t.Errorf("Expected joined_at reset to re-enter time, got %v", m.JoinedAt)
	}

	*now = start.Add(130 * time.Second)
	tr.Exit(ctx, groupID, userID)
	m, _ = store.Get(ctx, groupID, userID)
	if m.TotalStudyTime != 130 {
		t.Errorf("Expected 130s after exit, got %d", m.TotalStudyTime)
	}
}

func TestTracker_NotAMember(t *testing.T) {
	store := newFakeMembershipStore()
	tr, _ := newTestTracker(store, time.Now())
	ctx := context.Background()

	if _, err := tr.Enter(ctx, uuid.New(), uuid.New()); !errors.Is(err, ErrNotAMember) {
		t.Errorf("Expected ErrNotAMember from Enter, got %v", err)
	}
	if err := tr.Exit(ctx, uuid.New(), uuid.New()); !errors.Is(err, ErrNotAMember) {
		t.Errorf("Expected ErrNotAMember from Exit, got %v", err)
	}
}

func TestTracker_ExitRetriesThroughForcefulPath(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := newFakeMembershipStore()
	store.seed(groupID, userID)
	store.dropCloseSession = true

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(store, start)
	ctx := context.Background()

	tr.Enter(ctx, groupID, userID)
	*now = start.Add(42 * time.Second)

	if err := tr.Exit(ctx, groupID, userID); err != nil {
		t.Fatalf("Exit should succeed via the forceful path: %v", err)
	}
	if store.forceCloseCalls != 1 {
		t.Errorf("Expected exactly one forceful close, got %d", store.forceCloseCalls)
	}

	m, _ := store.Get(ctx, groupID, userID)
	if m.IsActive || m.TotalStudyTime != 42 {
		t.Errorf("Forceful close did not apply: active=%v total=%d", m.IsActive, m.TotalStudyTime)
	}
}

func TestTracker_ExitReportsStaleWriteWhenNothingApplies(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := newFakeMembershipStore()
	store.seed(groupID, userID)
	store.dropCloseSession = true
	store.dropForceCloseSession = true

	tr, _ := newTestTracker(store, time.Now())
	ctx := context.Background()

	tr.Enter(ctx, groupID, userID)
	if err := tr.Exit(ctx, groupID, userID); !errors.Is(err, ErrStaleWrite) {
		t.Errorf("Expected ErrStaleWrite, got %v", err)
	}
}

func TestTracker_LeaveRemovesRow(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := newFakeMembershipStore()
	store.seed(groupID, userID)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(store, start)
	ctx := context.Background()

	tr.Enter(ctx, groupID, userID)
	*now = start.Add(5 * time.Second)
	if err := tr.Leave(ctx, groupID, userID); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}

	if _, err := store.Get(ctx, groupID, userID); !errors.Is(err, ErrNotAMember) {
		t.Error("Expected membership row to be gone after leave")
	}

	// Leaving is terminal: a future enter needs a fresh row.
	if _, err := tr.Enter(ctx, groupID, userID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("Expected ErrNotAMember after leave, got %v", err)
	}
}

func TestTracker_HeartbeatDoesNotReviveDemotedSession(t *testing.T) {
	groupID, userID := uuid.New(), uuid.New()
	store := newFakeMembershipStore()
	m := store.seed(groupID, userID)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, now := newTestTracker(store, start)
	ctx := context.Background()

	tr.Enter(ctx, groupID, userID)

	// Reconciler demoted the member out-of-band.
	m.IsActive = false

	*now = start.Add(50 * time.Second)
	if err := tr.Heartbeat(ctx, groupID, userID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	got, _ := store.Get(ctx, groupID, userID)
	if got.IsActive {
		t.Error("Heartbeat must not reopen a closed session; only Enter may")
	}
	if !got.LastActiveAt.Equal(start.Add(50 * time.Second)) {
		t.Errorf("Heartbeat should still refresh last_active_at, got %v", got.LastActiveAt)
	}
}
