package events

import (
	"sync"
	"testing"
	"time"

	"github.com/and161185/lendkeeper/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func recv(t *testing.T, s *Subscription) model.AvailabilityEvent {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event")
		return model.AvailabilityEvent{}
	}
}

func TestBus_FanOut(t *testing.T) {
	t.Parallel()
	b := NewBus(zaptest.NewLogger(t))

	a := b.Subscribe(4)
	c := b.Subscribe(4)
	require.Equal(t, 2, b.Len())

	b.Publish(model.AvailabilityEvent{BookID: 1, Available: false})

	require.Equal(t, model.AvailabilityEvent{BookID: 1, Available: false}, recv(t, a))
	require.Equal(t, model.AvailabilityEvent{BookID: 1, Available: false}, recv(t, c))
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	t.Parallel()
	b := NewBus(nil)
	b.Publish(model.AvailabilityEvent{BookID: 7, Available: true})
	require.Zero(t, b.Dropped())
}

func TestBus_OverflowDropsOldest(t *testing.T) {
	t.Parallel()
	b := NewBus(zaptest.NewLogger(t))
	s := b.Subscribe(2)

	for i := int64(1); i <= 5; i++ {
		b.Publish(model.AvailabilityEvent{BookID: i})
	}

	require.Equal(t, int64(4), recv(t, s).BookID)
	require.Equal(t, int64(5), recv(t, s).BookID)
	require.Equal(t, uint64(3), s.Dropped())
	require.Equal(t, uint64(3), b.Dropped())
}

func TestBus_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	b := NewBus(zaptest.NewLogger(t))
	slow := b.Subscribe(1)
	fast := b.Subscribe(100)

	done := make(chan struct{})
	go func() {
		for i := int64(0); i < 50; i++ {
			b.Publish(model.AvailabilityEvent{BookID: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked")
	}

	for i := int64(0); i < 50; i++ {
		require.Equal(t, i, recv(t, fast).BookID)
	}
	require.Equal(t, int64(49), recv(t, slow).BookID)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	b := NewBus(zaptest.NewLogger(t))
	s := b.Subscribe(1)
	other := b.Subscribe(1)

	s.Close()
	s.Close()
	require.Equal(t, 1, b.Len())

	_, ok := <-s.Events()
	require.False(t, ok)

	b.Publish(model.AvailabilityEvent{BookID: 3, Available: true})
	require.Equal(t, int64(3), recv(t, other).BookID)
}

func TestBus_Close(t *testing.T) {
	t.Parallel()
	b := NewBus(zaptest.NewLogger(t))
	s := b.Subscribe(1)

	b.Close()
	b.Close()
	_, ok := <-s.Events()
	require.False(t, ok)

	s.Close()
	b.Publish(model.AvailabilityEvent{BookID: 1})

	late := b.Subscribe(1)
	_, ok = <-late.Events()
	require.False(t, ok)
	require.Zero(t, b.Len())
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	t.Parallel()
	b := NewBus(zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := b.Subscribe(1)
			for j := 0; j < 100; j++ {
				b.Publish(model.AvailabilityEvent{BookID: int64(j)})
			}
			s.Close()
		}()
	}
	wg.Wait()
	require.Zero(t, b.Len())
}
