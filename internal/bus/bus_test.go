package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []EventType
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func TestTypedAndWildcardDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	defer b.Close()

	var typed, all collector
	b.Subscribe(EventDispatchResult, typed.handle)
	b.Subscribe("", all.handle)

	require.NoError(t, b.Publish(NewEvent(EventDispatchStart)))
	require.NoError(t, b.Publish(NewEvent(EventDispatchResult)))
	require.NoError(t, b.Publish(NewEvent(EventDispatchDone)))

	require.Eventually(t, func() bool { return len(all.types()) == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(typed.types()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []EventType{EventDispatchResult}, typed.types())
	assert.Equal(t, []EventType{EventDispatchStart, EventDispatchResult, EventDispatchDone}, all.types())
}

func TestUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	defer b.Close()

	var c collector
	id := b.Subscribe(EventDispatchStart, c.handle)
	assert.Equal(t, 1, b.SubscriptionsCount())

	require.NoError(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriptionsCount())
	assert.Error(t, b.Unsubscribe(id))

	require.NoError(t, b.Publish(NewEvent(EventDispatchStart)))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.types())
}

func TestSubscriptionIDsAreUniqueUnderConcurrency(t *testing.T) {
	b := New()
	defer b.Close()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[SubscriptionID]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := b.Subscribe("", func(Event) {})
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 50)
	assert.Equal(t, 50, b.SubscriptionsCount())
}

func TestHistoryIsBounded(t *testing.T) {
	b := NewWithHistory(3)
	defer b.Close()

	for i := 1; i <= 5; i++ {
		ev := NewEvent(EventDispatchProgress)
		ev.Progress = i
		require.NoError(t, b.Publish(ev))
	}

	h := b.History(0)
	require.Len(t, h, 3)
	assert.Equal(t, 3, h[0].Progress)
	assert.Equal(t, 5, h[2].Progress)

	last := b.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, 5, last[0].Progress)
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	b.Subscribe("", func(Event) {})

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Close(), ErrClosed)
	assert.ErrorIs(t, b.Publish(NewEvent(EventDispatchDone)), ErrClosed)
	assert.Equal(t, SubscriptionID(""), b.Subscribe("", func(Event) {}))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe("", func(Event) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultChannelBuffer*3; i++ {
			_ = b.Publish(NewEvent(EventDispatchProgress))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
	assert.Positive(t, b.Dropped())
}

func TestNewEventIDs(t *testing.T) {
	a, c := NewEvent(EventDispatchStart), NewEvent(EventDispatchStart)
	assert.NotEqual(t, a.ID, c.ID)
	assert.False(t, a.Timestamp.IsZero())
}
