package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"studycircle-backend/internal/models"
)

// ReconcilerStore is the slice of the backing store a sweep needs.
type ReconcilerStore interface {
	ListActive(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error)

	// Demote flips a member offline with a direct write, bypassing the
	// tracker's exit path.
	Demote(ctx context.Context, groupID, userID uuid.UUID, total int64, now time.Time) error
}

// Reconciler is the authoritative backstop for clients that vanish
// without calling exit. One runs per group while that group has at
// least one local subscriber; each sweep demotes members whose last
// heartbeat is older than the staleness threshold.
//
// creditAbandoned decides what happens to a stale session's time: when
// true it is folded into the total up to the last heartbeat (the last
// proof the member was actually studying); when false it is dropped
// and only cleanly-closed sessions count.
type Reconciler struct {
	groupID         uuid.UUID
	store           ReconcilerStore
	interval        time.Duration
	staleAfter      time.Duration
	creditAbandoned bool
	now             func() time.Time
	onSweep         func()

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewReconciler(groupID uuid.UUID, store ReconcilerStore, interval, staleAfter time.Duration, creditAbandoned bool, onSweep func()) *Reconciler {
	return &Reconciler{
		groupID:         groupID,
		store:           store,
		interval:        interval,
		staleAfter:      staleAfter,
		creditAbandoned: creditAbandoned,
		now:             time.Now,
		onSweep:         onSweep,
		stopChan:        make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	go r.loop()
}

func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

func (r *Reconciler) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.Sweep(ctx)
			cancel()
		}
	}
}

// Sweep runs one reconciliation pass and reports how many members were
// demoted. Subscribers are notified after every sweep, demotions or
// not, so their presence view converges within one reconcile interval.
func (r *Reconciler) Sweep(ctx context.Context) int {
	defer func() {
		if r.onSweep != nil {
			r.onSweep()
		}
	}()

	members, err := r.store.ListActive(ctx, r.groupID)
	if err != nil {
		log.Printf("reconciler: failed to list active members of group %s: %v", r.groupID, err)
		return 0
	}

	now := r.now()
	demoted := 0
	for _, m := range members {
		if now.Sub(m.LastActiveAt) <= r.staleAfter {
			continue
		}

		total := m.TotalStudyTime
		if r.creditAbandoned {
			total = FoldSession(total, SessionSeconds(m.JoinedAt, m.LastActiveAt))
		}

		if err := r.store.Demote(ctx, r.groupID, m.UserID, total, now); err != nil {
			log.Printf("reconciler: failed to demote user %s in group %s: %v", m.UserID, r.groupID, err)
			continue
		}
		demoted++
	}

	return demoted
}
