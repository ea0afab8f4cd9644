package watch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/memoryd/internal/memory"
)

func TestHubDeliversOnlyToMatchingUser(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("alice")
	b := h.Subscribe("bob")

	n := h.Publish(memory.Item{UserID: "alice", Content: "hello"})
	assert.Equal(t, 1, n)

	select {
	case got := <-a.C():
		assert.Equal(t, "hello", got.Content)
	default:
		t.Fatalf("alice subscription did not receive item")
	}
	select {
	case got := <-b.C():
		t.Fatalf("bob received %+v, want nothing", got)
	default:
	}
	assert.Equal(t, 2, h.ActiveCount())
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub(1)
	var drops int
	var mu sync.Mutex
	h.SetDropHook(func(*Subscription) {
		mu.Lock()
		drops++
		mu.Unlock()
	})
	sub := h.Subscribe("u")

	assert.Equal(t, 1, h.Publish(memory.Item{UserID: "u", Content: "first"}))
	assert.Equal(t, 0, h.Publish(memory.Item{UserID: "u", Content: "second"}))
	assert.Equal(t, 1, drops)

	got := <-sub.C()
	assert.Equal(t, "first", got.Content)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe("u")

	require.NoError(t, h.Unsubscribe(sub.ID))
	_, open := <-sub.C()
	assert.False(t, open)
	assert.Equal(t, 0, h.ActiveCount())
	assert.ErrorIs(t, h.Unsubscribe(sub.ID), ErrNotFound)
	assert.Equal(t, 0, h.Publish(memory.Item{UserID: "u"}))
}

func TestHubConcurrentPublishAndUnsubscribe(t *testing.T) {
	h := NewHub(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		sub := h.Subscribe("u")
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Publish(memory.Item{UserID: "u"})
		}()
		go func() {
			defer wg.Done()
			_ = h.Unsubscribe(sub.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.ActiveCount())
}
