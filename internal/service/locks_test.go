package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks(t *testing.T) {
	t.Run("serializes work per key", func(t *testing.T) {
		locks := newKeyedLocks()
		counter := 0

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release := locks.Acquire("session-a")
				defer release()
				counter++
			}()
		}
		wg.Wait()

		assert.Equal(t, 100, counter)
	})

	t.Run("releases entries when unused", func(t *testing.T) {
		locks := newKeyedLocks()

		release := locks.Acquire("session-a")
		release()

		locks.mu.Lock()
		defer locks.mu.Unlock()
		assert.Empty(t, locks.locks)
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		locks := newKeyedLocks()

		releaseA := locks.Acquire("session-a")
		defer releaseA()

		done := make(chan struct{})
		go func() {
			releaseB := locks.Acquire("session-b")
			releaseB()
			close(done)
		}()

		<-done
	})
}
