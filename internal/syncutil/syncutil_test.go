package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestShardedMutexSerializesSameKey(t *testing.T) {
	var m ShardedMutex

	counter := 0
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := m.Lock("pay_1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
}

func TestContextShardedMutexLockUnlock(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("LockContext failed: %v", err)
	}
	unlock()

	// Key is free again after unlock.
	unlock, err = m.LockContext(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("re-acquire failed: %v", err)
	}
	unlock()
}

func TestContextShardedMutexCancelledWhileWaiting(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "ord_2")
	if err != nil {
		t.Fatalf("LockContext failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := m.LockContext(ctx, "ord_2"); err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestContextShardedMutexHandoff(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "ord_3")
	if err != nil {
		t.Fatalf("LockContext failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := m.LockContext(context.Background(), "ord_3")
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second caller acquired the key while it was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller never acquired the key after release")
	}
}
