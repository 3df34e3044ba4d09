// Package realtime is the change-notification primitive the presence
// core rides on. Repositories publish an event after every successful
// row write; subscribers treat events as "something changed, go re-read
// the store", never as the source of truth.
package realtime

import (
	"context"

	"github.com/google/uuid"
)

// Channel naming, one pair per group.
func MessagesChannel(groupID uuid.UUID) string {
	return "group:" + groupID.String() + ":messages"
}

func PresenceChannel(groupID uuid.UUID) string {
	return "group:" + groupID.String() + ":presence"
}

// Event is one notification as received off a channel.
type Event struct {
	Channel string
	Payload []byte
}

// Subscription is a live attachment to one or more channels. Close is
// idempotent and releases the underlying connection resources.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Notifier is implemented by the Redis adapter in production and by
// in-memory fakes in tests.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) Subscription
}
