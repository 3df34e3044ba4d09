package presence

import (
	"context"
	"log"
	"sync"
	"time"
)

// HeartbeatScheduler keeps one client attachment's membership fresh:
// an immediate pulse on Start, then one per interval until Stop. A
// failed pulse is logged and left for the next tick; the reconciler
// heals anything that stays stale.
type HeartbeatScheduler struct {
	interval time.Duration
	pulse    func(ctx context.Context) error
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewHeartbeatScheduler(interval time.Duration, pulse func(ctx context.Context) error) *HeartbeatScheduler {
	return &HeartbeatScheduler{
		interval: interval,
		pulse:    pulse,
		stopChan: make(chan struct{}),
	}
}

func (s *HeartbeatScheduler) Start() {
	go s.loop()
}

// Stop cancels the repeating pulse. Safe to call more than once and
// from any goroutine; every attach path must pair with exactly one
// Stop or the ticker leaks forever.
func (s *HeartbeatScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *HeartbeatScheduler) loop() {
	s.beat()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.beat()
		}
	}
}

func (s *HeartbeatScheduler) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.pulse(ctx); err != nil {
		log.Printf("heartbeat: pulse failed, retrying next tick: %v", err)
	}
}
