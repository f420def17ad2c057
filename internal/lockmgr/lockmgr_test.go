package lockmgr_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-wind-001/CodeRecoder/internal/lockmgr"
)

func TestWithLock_SerializesSameKey(t *testing.T) {
	m := lockmgr.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inFlight int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = m.WithLock("same-key", func() error {
				mu.Lock()
				inFlight++
				if inFlight > maxSeen {
					maxSeen = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()

				return nil
			})
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestWithLock_DifferentKeysRunConcurrently(t *testing.T) {
	m := lockmgr.New()

	var wg sync.WaitGroup
	var concurrent int32
	var maxConcurrent int32

	for i := 0; i < 2; i++ {
		key := "key-a"
		if i == 1 {
			key = "key-b"
		}

		wg.Add(1)

		go func(key string) {
			defer wg.Done()

			_ = m.WithLock(key, func() error {
				n := atomic.AddInt32(&concurrent, 1)

				for {
					max := atomic.LoadInt32(&maxConcurrent)
					if n <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, n) {
						break
					}
				}

				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&concurrent, -1)

				return nil
			})
		}(key)
	}

	wg.Wait()

	assert.EqualValues(t, 2, maxConcurrent)
}

func TestWithLock_PropagatesError(t *testing.T) {
	m := lockmgr.New()

	wantErr := assert.AnError

	err := m.WithLock("k", func() error { return wantErr })
	require.Equal(t, wantErr, err)

	// An errored op must not poison the chain for the next caller.
	ran := false
	err = m.WithLock("k", func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
