package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubWaitWokenByPublish(t *testing.T) {
	hub := NewHub()

	woken := make(chan bool, 1)
	go func() {
		woken <- hub.Wait(context.Background(), "j1", time.Second)
	}()

	require.Eventually(t, func() bool {
		return hub.WaiterCount("j1") == 1
	}, time.Second, time.Millisecond)

	hub.Publish("j1")

	select {
	case got := <-woken:
		assert.True(t, got)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestHubWaitTimesOut(t *testing.T) {
	hub := NewHub()

	woken := hub.Wait(context.Background(), "j1", 10*time.Millisecond)

	assert.False(t, woken)
	assert.Zero(t, hub.WaiterCount("j1"))
}

func TestHubWaitHonorsContext(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	woken := make(chan bool, 1)
	go func() {
		woken <- hub.Wait(ctx, "j1", time.Minute)
	}()

	require.Eventually(t, func() bool {
		return hub.WaiterCount("j1") == 1
	}, time.Second, time.Millisecond)

	cancel()

	select {
	case got := <-woken:
		assert.False(t, got)
	case <-time.After(time.Second):
		t.Fatal("waiter never returned after cancel")
	}
}

func TestHubPublishWakesAllWaiters(t *testing.T) {
	hub := NewHub()

	woken := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			woken <- hub.Wait(context.Background(), "j1", time.Second)
		}()
	}

	require.Eventually(t, func() bool {
		return hub.WaiterCount("j1") == 2
	}, time.Second, time.Millisecond)

	hub.Publish("j1")

	for i := 0; i < 2; i++ {
		select {
		case got := <-woken:
			assert.True(t, got)
		case <-time.After(time.Second):
			t.Fatal("waiter never woke")
		}
	}
}

func TestHubPublishIsScopedToJob(t *testing.T) {
	hub := NewHub()

	sig := hub.Subscribe("j1")
	defer hub.Unsubscribe("j1", sig)

	hub.Publish("other-job")

	assert.Empty(t, sig)
}

func TestHubPublishCoalesces(t *testing.T) {
	hub := NewHub()

	sig := hub.Subscribe("j1")
	defer hub.Unsubscribe("j1", sig)

	hub.Publish("j1")
	hub.Publish("j1")

	assert.Len(t, sig, 1)
}

func TestHubPublishWithoutWaitersIsNotSticky(t *testing.T) {
	hub := NewHub()

	hub.Publish("j1")

	// A signal sent before anyone subscribed must not wake a later reader.
	woken := hub.Wait(context.Background(), "j1", 10*time.Millisecond)
	assert.False(t, woken)
}

func TestHubUnsubscribeDropsWaiter(t *testing.T) {
	hub := NewHub()

	sig := hub.Subscribe("j1")
	require.Equal(t, 1, hub.WaiterCount("j1"))

	hub.Unsubscribe("j1", sig)
	assert.Zero(t, hub.WaiterCount("j1"))

	// Double unsubscribe is harmless.
	hub.Unsubscribe("j1", sig)
}
