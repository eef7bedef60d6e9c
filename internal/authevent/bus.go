package authevent

import (
	"sync"

	"go.uber.org/zap"
)

// Bus is a named-subscriber registry with synchronous fan-out. At most one
// handler is registered per id; re-registering an id replaces the handler
// in place without disturbing other subscribers. Delivery within one Emit
// call is FIFO by registration order. There is no replay for late
// subscribers.
type Bus struct {
	mu      sync.Mutex
	log     *zap.Logger
	nextSeq uint64
	entries []entry
}

type entry struct {
	id  string
	seq uint64
	h   Handler
}

// NewBus constructs a Bus logging subscriber failures to log.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log}
}

// On registers handler under id and returns an unsubscribe func. The token
// removes exactly the registration it was issued for: if the id is later
// re-registered, a stale token firing late is a no-op.
func (b *Bus) On(id string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	seq := b.nextSeq

	replaced := false
	for i := range b.entries {
		if b.entries[i].id == id {
			b.entries[i].seq = seq
			b.entries[i].h = h
			replaced = true
			break
		}
	}
	if !replaced {
		b.entries = append(b.entries, entry{id: id, seq: seq, h: h})
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.entries {
			if b.entries[i].id == id && b.entries[i].seq == seq {
				b.entries = append(b.entries[:i], b.entries[i+1:]...)
				return
			}
		}
	}
}

// Emit invokes every registered handler in registration order. A panicking
// handler is recovered and logged so it cannot block delivery to the rest
// or unwind the emitter.
func (b *Bus) Emit(evt Type, data Payload) {
	b.mu.Lock()
	snapshot := make([]entry, len(b.entries))
	copy(snapshot, b.entries)
	b.mu.Unlock()

	b.log.Debug("emit auth event", zap.String("event", string(evt)))
	for _, e := range snapshot {
		b.invoke(e, evt, data)
	}
}

func (b *Bus) invoke(e entry, evt Type, data Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("auth event handler panicked",
				zap.String("event", string(evt)),
				zap.String("subscriber", e.id),
				zap.Any("panic", r),
			)
		}
	}()
	e.h(evt, data)
}

// Len reports the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
