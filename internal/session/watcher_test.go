package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classkeeper/authsession/internal/feed"
)

type watchRecorder struct {
	mu      sync.Mutex
	updated []uuid.UUID
	deleted []uuid.UUID
}

func (r *watchRecorder) onUpdated(pid uuid.UUID) {
	r.mu.Lock()
	r.updated = append(r.updated, pid)
	r.mu.Unlock()
}

func (r *watchRecorder) onDeleted(pid uuid.UUID) {
	r.mu.Lock()
	r.deleted = append(r.deleted, pid)
	r.mu.Unlock()
}

func (r *watchRecorder) updatedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updated)
}

func (r *watchRecorder) deletedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deleted)
}

func TestWatcher_DispatchesUpdateAndDelete(t *testing.T) {
	f := feed.NewMemory()
	rec := &watchRecorder{}
	w := NewWatcher(f, zap.NewNop(), rec.onUpdated, rec.onDeleted)
	pid := uuid.Must(uuid.NewV4())

	require.NoError(t, w.Attach(context.Background(), pid))
	defer w.Detach()

	f.Publish(feed.Event{Kind: feed.Updated, PrincipalID: pid})
	require.Eventually(t, func() bool { return rec.updatedCount() == 1 }, time.Second, 5*time.Millisecond)

	f.Publish(feed.Event{Kind: feed.Deleted, PrincipalID: pid})
	require.Eventually(t, func() bool { return rec.deletedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_DetachIsIdempotent(t *testing.T) {
	f := feed.NewMemory()
	rec := &watchRecorder{}
	w := NewWatcher(f, zap.NewNop(), rec.onUpdated, rec.onDeleted)

	// Never attached.
	w.Detach()

	pid := uuid.Must(uuid.NewV4())
	require.NoError(t, w.Attach(context.Background(), pid))
	w.Detach()
	w.Detach()

	// Events after detach are not delivered.
	f.Publish(feed.Event{Kind: feed.Updated, PrincipalID: pid})
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, rec.updatedCount())
}

func TestWatcher_AttachReplacesSubscription(t *testing.T) {
	f := feed.NewMemory()
	rec := &watchRecorder{}
	w := NewWatcher(f, zap.NewNop(), rec.onUpdated, rec.onDeleted)
	old := uuid.Must(uuid.NewV4())
	cur := uuid.Must(uuid.NewV4())

	require.NoError(t, w.Attach(context.Background(), old))
	require.NoError(t, w.Attach(context.Background(), cur))
	defer w.Detach()

	f.Publish(feed.Event{Kind: feed.Updated, PrincipalID: old})
	f.Publish(feed.Event{Kind: feed.Updated, PrincipalID: cur})

	require.Eventually(t, func() bool { return rec.updatedCount() == 1 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, cur, rec.updated[0])
}

func TestWatcher_DeleteEndsSubscription(t *testing.T) {
	f := feed.NewMemory()
	rec := &watchRecorder{}
	w := NewWatcher(f, zap.NewNop(), rec.onUpdated, rec.onDeleted)
	pid := uuid.Must(uuid.NewV4())

	require.NoError(t, w.Attach(context.Background(), pid))
	f.Publish(feed.Event{Kind: feed.Deleted, PrincipalID: pid})
	require.Eventually(t, func() bool { return rec.deletedCount() == 1 }, time.Second, 5*time.Millisecond)

	// The stream is terminal after a delete; further events are ignored.
	f.Publish(feed.Event{Kind: feed.Updated, PrincipalID: pid})
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, rec.updatedCount())

	w.Detach()
}
