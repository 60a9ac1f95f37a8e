package pudw

import (
	"sync"
	"testing"
	"time"
)

func TestOutboundQueueDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got [][]byte
	q := NewOutboundQueue(func(b []byte) {
		mu.Lock()
		got = append(got, b)
		mu.Unlock()
	})

	q.Push([]byte("one"))
	q.Push([]byte("two"))
	q.Push([]byte("three"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(drainInterval)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if string(got[i]) != want {
			t.Errorf("item %d: got %q, want %q", i, got[i], want)
		}
	}
}

func TestOutboundQueueLenReachesZeroOnceDrained(t *testing.T) {
	block := make(chan struct{})
	released := make(chan struct{})
	q := NewOutboundQueue(func(b []byte) {
		<-block
	})

	q.Push([]byte("a"))
	q.Push([]byte("b"))

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(block)
		close(released)
	}()
	<-released

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && q.Len() != 0 {
		time.Sleep(drainInterval)
	}
	if q.Len() != 0 {
		t.Fatalf("queue never drained, len=%d", q.Len())
	}
}
