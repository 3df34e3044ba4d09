package realtime

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier backs the Notifier contract with Redis pub/sub. The
// publisher and subscriber must be distinct clients: a connection in
// subscribe mode rejects regular commands.
type RedisNotifier struct {
	pub *redis.Client
	sub *redis.Client
}

func NewRedisNotifier(pub, sub *redis.Client) *RedisNotifier {
	return &RedisNotifier{pub: pub, sub: sub}
}

func (n *RedisNotifier) Publish(ctx context.Context, channel string, payload []byte) error {
	return n.pub.Publish(ctx, channel, payload).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, channels ...string) Subscription {
	pubsub := n.sub.Subscribe(ctx, channels...)

	s := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.events)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.events <- Event{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
