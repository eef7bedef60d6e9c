package session

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/classkeeper/authsession/internal/feed"
)

// Watcher holds at most one change-feed subscription for the signed-in
// principal. Updated notifications trigger onUpdated; Deleted notifications
// trigger onDeleted. Callbacks run on the watcher goroutine.
type Watcher struct {
	mu   sync.Mutex
	feed feed.Feed
	log  *zap.Logger

	onUpdated func(principalID uuid.UUID)
	onDeleted func(principalID uuid.UUID)

	sub    feed.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher constructs a detached watcher over f.
func NewWatcher(f feed.Feed, log *zap.Logger, onUpdated, onDeleted func(uuid.UUID)) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{feed: f, log: log, onUpdated: onUpdated, onDeleted: onDeleted}
}

// Attach subscribes to changes for principalID, implicitly detaching any
// previous subscription first.
func (w *Watcher) Attach(ctx context.Context, principalID uuid.UUID) error {
	w.Detach()

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := w.feed.Subscribe(subCtx, principalID)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	w.mu.Lock()
	w.sub = sub
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	w.log.Debug("profile watcher attached", zap.String("principalID", principalID.String()))
	go w.run(sub, done)
	return nil
}

// Detach closes the subscription and waits for the watcher goroutine to
// drain. Idempotent: safe when never attached or called twice.
func (w *Watcher) Detach() {
	w.mu.Lock()
	sub, cancel, done := w.sub, w.cancel, w.done
	w.sub, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if sub == nil {
		return
	}
	_ = sub.Close()
	cancel()
	<-done
	w.log.Debug("profile watcher detached")
}

func (w *Watcher) run(sub feed.Subscription, done chan struct{}) {
	for evt := range sub.Events() {
		switch evt.Kind {
		case feed.Updated:
			w.onUpdated(evt.PrincipalID)
		case feed.Deleted:
			// Close done before the callback: the deletion handler tears the
			// session down, and that path calls Detach, which waits on done.
			close(done)
			w.onDeleted(evt.PrincipalID)
			return
		default:
			w.log.Warn("unknown feed event", zap.String("kind", string(evt.Kind)))
		}
	}
	close(done)
}
