package tunnel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNameLocksServeWaitersInOrder(t *testing.T) {
	l := newNameLocks()
	release, err := l.acquire(context.Background(), "wg0")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.acquire(context.Background(), "wg0")
			if err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}()
		// Let each waiter queue before the next one arrives.
		time.Sleep(10 * time.Millisecond)
	}

	release()
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("waiters served out of order: %v", order)
		}
	}
	if n := l.size(); n != 0 {
		t.Fatalf("expected lock table to drain, %d entries left", n)
	}
}

func TestNameLocksCancelledWaiterLeavesNoEntry(t *testing.T) {
	l := newNameLocks()
	release, err := l.acquire(context.Background(), "wg0")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.acquire(ctx, "wg0"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	release()
	release()
	if n := l.size(); n != 0 {
		t.Fatalf("expected lock table to drain, %d entries left", n)
	}
}

func TestNameLocksIndependentNames(t *testing.T) {
	l := newNameLocks()
	r1, err := l.acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := l.acquire(ctx, "b")
	if err != nil {
		t.Fatalf("different name should not block: %v", err)
	}
	r2()
}
