package protocol_test

import (
	"sync"
	"testing"

	"github.com/biosso/facegate/internal/protocol"
)

func TestIdentityLocks_MutualExclusion(t *testing.T) {
	t.Parallel()

	locks := protocol.NewIdentityLocks()

	var counter, max int
	var inner sync.Mutex

	const goroutines = 32
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("u1")
			defer unlock()

			inner.Lock()
			counter++
			if counter > max {
				max = counter
			}
			inner.Unlock()

			inner.Lock()
			counter--
			inner.Unlock()
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Errorf("max concurrent holders = %d, want 1", max)
	}
}

func TestIdentityLocks_DistinctIdentitiesDoNotBlock(t *testing.T) {
	t.Parallel()

	locks := protocol.NewIdentityLocks()

	unlockA := locks.Lock("a")
	defer unlockA()

	// Must not deadlock: "b" is an independent lock.
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
}

func TestIdentityLocks_Reusable(t *testing.T) {
	t.Parallel()

	locks := protocol.NewIdentityLocks()
	for range 100 {
		unlock := locks.Lock("u1")
		unlock()
	}
}
