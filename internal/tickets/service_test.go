package tickets

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km keyedMutex
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("contact:account")
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxActive, "holders of the same key must not overlap")
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var km keyedMutex
	unlockA := km.lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on independent key blocked")
	}
	unlockA()
}

func TestKeyedMutexFreesEntries(t *testing.T) {
	var km keyedMutex
	unlock := km.lock("a")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	require.Empty(t, km.entries)
}
