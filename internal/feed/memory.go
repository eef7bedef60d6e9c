package feed

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Memory is an in-process Feed. Publish delivers to every open subscription
// for the event's principal. Useful for tests and single-process setups.
type Memory struct {
	mu   sync.Mutex
	subs map[uuid.UUID][]*memorySub
}

// NewMemory constructs an empty in-process feed.
func NewMemory() *Memory {
	return &Memory{subs: make(map[uuid.UUID][]*memorySub)}
}

type memorySub struct {
	feed        *Memory
	principalID uuid.UUID
	ch          chan Event
	closeOnce   sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.closeOnce.Do(func() { s.feed.drop(s) })
	return nil
}

// Subscribe opens a buffered subscription for principalID.
func (m *Memory) Subscribe(ctx context.Context, principalID uuid.UUID) (Subscription, error) {
	sub := &memorySub{feed: m, principalID: principalID, ch: make(chan Event, 16)}
	m.mu.Lock()
	m.subs[principalID] = append(m.subs[principalID], sub)
	m.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			_ = sub.Close()
		}()
	}
	return sub, nil
}

// Publish fans evt out to all subscriptions watching its principal. Slow
// consumers drop events once their buffer is full. Sends happen under the
// feed lock so a concurrent Close cannot close a channel mid-send; the
// buffered non-blocking send keeps the lock hold time bounded.
func (m *Memory) Publish(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs[evt.PrincipalID] {
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// drop removes sub from the fan-out and closes its channel under the same
// lock Publish sends under.
func (m *Memory) drop(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[sub.principalID]
	for i, s := range list {
		if s == sub {
			m.subs[sub.principalID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	close(sub.ch)
}
