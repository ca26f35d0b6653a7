package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	SessionID string
	Body      string
}

func sessionFilter(sessionID string) func(testEvent) bool {
	return func(e testEvent) bool { return e.SessionID == sessionID }
}

func TestBus_PublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	sub := b.Subscribe(context.Background(), "prediction-added", sessionFilter("s1"))
	b.Publish("prediction-added", testEvent{SessionID: "s1", Body: "hello"})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "hello", ev.Body)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_PredicateFiltersOtherSessions(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	sub := b.Subscribe(context.Background(), "prediction-added", sessionFilter("mine"))
	b.Publish("prediction-added", testEvent{SessionID: "other", Body: "not for you"})
	b.Publish("prediction-added", testEvent{SessionID: "mine", Body: "for you"})

	ev := <-sub.Events()
	assert.Equal(t, "for you", ev.Body)
	assert.Empty(t, sub.Events())
}

func TestBus_NoCrossTalkBetweenSessions(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	const n = 10
	subs := make([]*Subscription[testEvent], n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("session-%d", i)
		subs[i] = b.Subscribe(context.Background(), "prediction-added", sessionFilter(id))
	}

	// Publish one event per session, concurrently.
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish("prediction-added", testEvent{
				SessionID: fmt.Sprintf("session-%d", i),
				Body:      fmt.Sprintf("body-%d", i),
			})
		}(i)
	}
	wg.Wait()

	// Each subscriber receives exactly its own event.
	for i := 0; i < n; i++ {
		select {
		case ev := <-subs[i].Events():
			require.Equal(t, fmt.Sprintf("session-%d", i), ev.SessionID)
			require.Equal(t, fmt.Sprintf("body-%d", i), ev.Body)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received no event", i)
		}
		assert.Empty(t, subs[i].Events(), "subscriber %d received an extra event", i)
	}
}

func TestBus_TopicsAreIndependent(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	sub := b.Subscribe(context.Background(), "text-prediction-added", nil)
	b.Publish("visual-prediction-added", testEvent{SessionID: "s1"})

	assert.Empty(t, sub.Events())
}

func TestBus_NoBacklog(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	b.Publish("prediction-added", testEvent{SessionID: "s1", Body: "before"})
	sub := b.Subscribe(context.Background(), "prediction-added", nil)

	assert.Empty(t, sub.Events(), "subscriber must not see events published before subscribing")
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	sub := b.Subscribe(context.Background(), "prediction-added", nil)
	require.Equal(t, 1, b.SubscriberCount("prediction-added"))

	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount("prediction-added"))

	// Channel is closed; publishing afterwards must not panic.
	b.Publish("prediction-added", testEvent{SessionID: "s1"})
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := New[testEvent]()
	sub := b.Subscribe(context.Background(), "prediction-added", nil)
	sub.Close()
	sub.Close()
	b.Close()
	b.Close()
}

func TestBus_ContextCancellationUnsubscribes(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx, "prediction-added", nil)
	require.Equal(t, 1, b.SubscriberCount("prediction-added"))

	cancel()

	deadline := time.After(time.Second)
	for b.SubscriberCount("prediction-added") != 0 {
		select {
		case <-deadline:
			t.Fatal("subscription not released after context cancellation")
		case <-time.After(5 * time.Millisecond):
		}
	}
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New[testEvent](WithBufferSize[testEvent](2))
	defer b.Close()

	// Nobody reads from this subscription; its buffer fills after 2 events.
	slow := b.Subscribe(context.Background(), "prediction-added", nil)
	fast := b.Subscribe(context.Background(), "prediction-added", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish("prediction-added", testEvent{SessionID: "s1", Body: fmt.Sprintf("%d", i)})
			// Keep the fast subscriber drained.
			<-fast.Events()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The slow subscriber kept only what fit in its buffer.
	assert.Len(t, slow.Events(), 2)
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := New[testEvent]()
	b.Close()

	sub := b.Subscribe(context.Background(), "prediction-added", nil)
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBus_ConcurrentSubscribeUnsubscribePublish(t *testing.T) {
	b := New[testEvent]()
	defer b.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish("prediction-added", testEvent{SessionID: "s1"})
			}
		}
	}()

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(context.Background(), "prediction-added", sessionFilter("s1"))
			time.Sleep(time.Millisecond)
			sub.Close()
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()
}
