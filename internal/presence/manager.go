package presence

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studycircle-backend/internal/models"
	"studycircle-backend/internal/realtime"
)

// ManagerStore is everything the manager and its per-group reconcilers
// read and write.
type ManagerStore interface {
	ReconcilerStore
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Membership, error)
}

// NameResolver turns a user id into a display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

type MessageFunc func(models.MessageView)
type PresenceFunc func([]models.MemberView)

type ManagerConfig struct {
	ReconcileInterval   time.Duration
	InactivityThreshold time.Duration
	CreditAbandoned     bool
}

// Manager owns every live group channel in this process: the shared
// notification subscription, the per-group reconciler, and the local
// listener set, all reference counted. The first subscriber to a group
// brings its channel up; the last one's Close tears it down.
type Manager struct {
	notifier realtime.Notifier
	store    ManagerStore
	names    NameResolver
	cfg      ManagerConfig
	now      func() time.Time

	mu       sync.Mutex
	channels map[uuid.UUID]*groupChannel
	nextID   int
	closed   bool
}

type groupChannel struct {
	sub        realtime.Subscription
	reconciler *Reconciler
	listeners  map[int]*Subscription
}

// Subscription is one local listener's handle on a group channel.
type Subscription struct {
	manager    *Manager
	groupID    uuid.UUID
	id         int
	onMessage  MessageFunc
	onPresence PresenceFunc
	closeOnce  sync.Once
}

func NewManager(notifier realtime.Notifier, store ManagerStore, names NameResolver, cfg ManagerConfig) *Manager {
	return &Manager{
		notifier: notifier,
		store:    store,
		names:    names,
		cfg:      cfg,
		now:      time.Now,
		channels: make(map[uuid.UUID]*groupChannel),
	}
}

// Subscribe attaches a listener to a group's channel, creating the
// channel and starting the group's reconciler if this is the first
// local subscriber. Callbacks may be nil when a listener only cares
// about one kind of event. The returned Subscription must be closed on
// every detach path.
func (m *Manager) Subscribe(groupID uuid.UUID, onMessage MessageFunc, onPresence PresenceFunc) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	ch, ok := m.channels[groupID]
	if !ok {
		ch = &groupChannel{
			sub: m.notifier.Subscribe(context.Background(),
				realtime.MessagesChannel(groupID),
				realtime.PresenceChannel(groupID),
			),
			listeners: make(map[int]*Subscription),
		}
		ch.reconciler = NewReconciler(
			groupID,
			m.store,
			m.cfg.ReconcileInterval,
			m.cfg.InactivityThreshold,
			m.cfg.CreditAbandoned,
			func() { m.fanOutPresence(groupID) },
		)
		ch.reconciler.Start()
		m.channels[groupID] = ch
		go m.pump(groupID, ch)
	}

	m.nextID++
	sub := &Subscription{
		manager:    m,
		groupID:    groupID,
		id:         m.nextID,
		onMessage:  onMessage,
		onPresence: onPresence,
	}
	ch.listeners[sub.id] = sub
	return sub
}

// Close detaches the listener. The last detach for a group stops its
// reconciler and releases the notification subscription.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.manager.release(s.groupID, s.id)
	})
}

// SubscriberCount reports the number of live local listeners for a
// group. Zero means the group's channel is not open in this process.
func (m *Manager) SubscriberCount(groupID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[groupID]
	if !ok {
		return 0
	}
	return len(ch.listeners)
}

// Close disposes every open channel. Used on process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for groupID, ch := range m.channels {
		ch.reconciler.Stop()
		ch.sub.Close()
		delete(m.channels, groupID)
	}
}

func (m *Manager) release(groupID uuid.UUID, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[groupID]
	if !ok {
		return
	}
	delete(ch.listeners, id)
	if len(ch.listeners) > 0 {
		return
	}

	ch.reconciler.Stop()
	ch.sub.Close()
	delete(m.channels, groupID)
}

// pump drains store notifications for one group until the subscription
// closes. Message events carry the inserted row; presence events are
// treated purely as a "re-read the member list" signal.
func (m *Manager) pump(groupID uuid.UUID, ch *groupChannel) {
	for ev := range ch.sub.Events() {
		switch ev.Channel {
		case realtime.MessagesChannel(groupID):
			m.fanOutMessage(groupID, ev.Payload)
		case realtime.PresenceChannel(groupID):
			m.fanOutPresence(groupID)
		}
	}
}

func (m *Manager) fanOutMessage(groupID uuid.UUID, payload []byte) {
	var msg models.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("presence: dropping malformed message event for group %s: %v", groupID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	view := models.MessageView{
		ID:              msg.ID,
		GroupID:         msg.GroupID,
		UserID:          msg.UserID,
		AuthorName:      m.resolveAuthor(ctx, &msg),
		Text:            msg.Text,
		IsSystemMessage: msg.IsSystemMessage,
		CreatedAt:       msg.CreatedAt,
	}

	for _, sub := range m.snapshotListeners(groupID) {
		if sub.onMessage != nil {
			sub.onMessage(view)
		}
	}
}

func (m *Manager) fanOutPresence(groupID uuid.UUID) {
	listeners := m.snapshotListeners(groupID)
	if len(listeners) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	views, err := m.MemberViews(ctx, groupID)
	if err != nil {
		log.Printf("presence: failed to read members of group %s: %v", groupID, err)
		return
	}

	for _, sub := range listeners {
		if sub.onPresence != nil {
			sub.onPresence(views)
		}
	}
}

// MemberViews reads the group's members fresh from the store, resolves
// names, and orders them as a leaderboard: live study time descending,
// user id ascending on ties.
func (m *Manager) MemberViews(ctx context.Context, groupID uuid.UUID) ([]models.MemberView, error) {
	members, err := m.store.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	views := make([]models.MemberView, 0, len(members))
	for _, mem := range members {
		name, err := m.names.DisplayName(ctx, mem.UserID)
		if err != nil {
			name = models.PlaceholderName(mem.UserID)
		}
		views = append(views, models.MemberView{
			UserID:           mem.UserID,
			DisplayName:      name,
			IsAdmin:          mem.IsAdmin,
			IsActive:         mem.IsActive,
			StudyTimeSeconds: LiveStudyTime(mem.TotalStudyTime, mem.IsActive, mem.JoinedAt, now),
			LastActiveAt:     mem.LastActiveAt,
		})
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].StudyTimeSeconds != views[j].StudyTimeSeconds {
			return views[i].StudyTimeSeconds > views[j].StudyTimeSeconds
		}
		return views[i].UserID.String() < views[j].UserID.String()
	})

	return views, nil
}

func (m *Manager) resolveAuthor(ctx context.Context, msg *models.Message) string {
	if msg.IsSystemMessage || msg.UserID == nil {
		return models.SystemAuthorName
	}
	name, err := m.names.DisplayName(ctx, *msg.UserID)
	if err != nil {
		return models.PlaceholderName(*msg.UserID)
	}
	return name
}

func (m *Manager) snapshotListeners(groupID uuid.UUID) []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[groupID]
	if !ok {
		return nil
	}
	out := make([]*Subscription, 0, len(ch.listeners))
	for _, sub := range ch.listeners {
		out = append(out, sub)
	}
	return out
}
