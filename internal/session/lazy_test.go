package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyGuard_RunsFnOnlyOnce(t *testing.T) {
	var g lazyGuard
	calls := 0
	for i := 0; i < 3; i++ {
		err := g.once(func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
	assert.True(t, g.isDone())
}

func TestLazyGuard_FailureDoesNotLatch(t *testing.T) {
	var g lazyGuard
	boom := errors.New("boom")

	err := g.once(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.isDone())

	calls := 0
	err = g.once(func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, g.isDone())
}

func TestLazyGuard_ConcurrentFirstCallersSerialize(t *testing.T) {
	var g lazyGuard
	var running int32
	var maxConcurrent int32
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.once(func() error {
				mu.Lock()
				running++
				if running > maxConcurrent {
					maxConcurrent = running
				}
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxConcurrent, "concurrent first callers must serialize, not race")
}
