package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDualEnforcesInterval(t *testing.T) {
	d := NewDual(4, 10) // 100ms apart

	start := time.Now()
	for range 3 {
		require.NoError(t, d.Acquire(t.Context()))
		d.Release()
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond, "three acquisitions at 10/s need >=200ms minus slack")
}

func TestDualBoundsConcurrency(t *testing.T) {
	d := NewDual(2, 1000)

	var (
		wg      sync.WaitGroup
		inUse   atomic.Int32
		maxSeen atomic.Int32
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, d.Acquire(t.Context()))
			cur := inUse.Add(1)
			for {
				prev := maxSeen.Load()
				if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inUse.Add(-1)
			d.Release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestDualReleaseDoesNotResetRate(t *testing.T) {
	d := NewDual(1, 5) // 200ms apart

	require.NoError(t, d.Acquire(t.Context()))
	d.Release()

	start := time.Now()
	require.NoError(t, d.Acquire(t.Context()))
	d.Release()

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestDualAcquireCancelReleasesSlot(t *testing.T) {
	d := NewDual(1, 0.2) // 5s apart

	require.NoError(t, d.Acquire(t.Context()))
	d.Release()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	require.Error(t, d.Acquire(ctx))

	// the aborted acquire must not leak its slot
	ctx2, cancel2 := context.WithTimeout(t.Context(), time.Second)
	defer cancel2()
	require.NoError(t, d.slots.Acquire(ctx2, 1))
	d.slots.Release(1)
}
