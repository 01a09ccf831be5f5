package services

import (
	"sync"
	"testing"
)

func TestPostLocksSerializePerPost(t *testing.T) {
	locks := newPostLocks()

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.lock(7)
			counter++
			locks.unlock(7)
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
	if len(locks.entries) != 0 {
		t.Fatalf("%d lock entries leaked", len(locks.entries))
	}
}

func TestPostLocksIndependentPosts(t *testing.T) {
	locks := newPostLocks()

	locks.lock(1)
	done := make(chan struct{})
	go func() {
		// A different post must not block behind post 1's holder.
		locks.lock(2)
		locks.unlock(2)
		close(done)
	}()
	<-done
	locks.unlock(1)

	if len(locks.entries) != 0 {
		t.Fatalf("%d lock entries leaked", len(locks.entries))
	}
}
