package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestMemory_DeliversToMatchingPrincipalOnly(t *testing.T) {
	m := NewMemory()
	watched := uuid.Must(uuid.NewV4())
	other := uuid.Must(uuid.NewV4())

	sub, err := m.Subscribe(context.Background(), watched)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	m.Publish(Event{Kind: Updated, PrincipalID: other})
	m.Publish(Event{Kind: Deleted, PrincipalID: watched})

	select {
	case evt := <-sub.Events():
		require.Equal(t, Deleted, evt.Kind)
		require.Equal(t, watched, evt.PrincipalID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestMemory_CloseEndsStreamAndStopsDelivery(t *testing.T) {
	m := NewMemory()
	pid := uuid.Must(uuid.NewV4())

	sub, err := m.Subscribe(context.Background(), pid)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, open := <-sub.Events()
	require.False(t, open)

	// Publishing against a closed subscription must be a no-op.
	m.Publish(Event{Kind: Updated, PrincipalID: pid})
}

func TestMemory_PublishRacingCloseIsSafe(t *testing.T) {
	m := NewMemory()
	pid := uuid.Must(uuid.NewV4())

	for i := 0; i < 200; i++ {
		sub, err := m.Subscribe(context.Background(), pid)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Publish(Event{Kind: Updated, PrincipalID: pid})
		}()
		go func() {
			defer wg.Done()
			_ = sub.Close()
		}()
		wg.Wait()
	}
}
