package upload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingReserveRelease(t *testing.T) {
	sa := NewStagingAllocator(1024, false)

	r1, err := sa.Reserve(256)
	require.NoError(t, err)
	r2, err := sa.Reserve(256)
	require.NoError(t, err)

	assert.Equal(t, uint64(512), sa.FreeBytes())
	assert.Equal(t, 2, sa.LiveCount())

	sa.Release(r1)
	sa.Release(r2)
	assert.Equal(t, uint64(1024), sa.FreeBytes())
	assert.Equal(t, 0, sa.LiveCount())
}

func TestStagingNoOverlappingRegions(t *testing.T) {
	sa := NewStagingAllocator(4096, false)

	var mu sync.Mutex
	var regions []StagingRegion
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := sa.Reserve(256)
			if err != nil {
				return
			}
			mu.Lock()
			regions = append(regions, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, regions, 16)
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			overlaps := a.Offset < b.Offset+b.Size && b.Offset < a.Offset+a.Size
			assert.False(t, overlaps, "regions %+v and %+v overlap", a, b)
		}
	}
}

func TestStagingCoalescing(t *testing.T) {
	sa := NewStagingAllocator(300, false)

	a, err := sa.Reserve(100)
	require.NoError(t, err)
	b, err := sa.Reserve(100)
	require.NoError(t, err)
	c, err := sa.Reserve(100)
	require.NoError(t, err)

	// release out of order; the freed blocks must merge back into one
	sa.Release(a)
	sa.Release(c)
	sa.Release(b)

	full, err := sa.Reserve(300)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), full.Offset)
}

func TestStagingExhaustionRecovers(t *testing.T) {
	// pool fits exactly one region; three callers contend for it
	const regionSize = 128
	sa := NewStagingAllocator(regionSize, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := sa.ReserveWait(ctx, regionSize)
			if err != nil {
				return
			}
			succeeded <- struct{}{}
			time.Sleep(10 * time.Millisecond) // hold it briefly, like an in-flight copy
			sa.Release(r)
		}()
	}
	wg.Wait()
	close(succeeded)

	count := 0
	for range succeeded {
		count++
	}
	assert.Equal(t, 3, count, "all reservations must eventually succeed")
	assert.Equal(t, uint64(regionSize), sa.FreeBytes())
}

func TestStagingReserveTooLarge(t *testing.T) {
	sa := NewStagingAllocator(64, false)

	_, err := sa.Reserve(128)
	assert.ErrorIs(t, err, ErrOutOfStaging)

	// a request that can never fit must fail immediately, not block
	ctx := context.Background()
	_, err = sa.ReserveWait(ctx, 128)
	assert.ErrorIs(t, err, ErrOutOfStaging)
}

func TestStagingDoubleReleaseIgnoredInRelease(t *testing.T) {
	sa := NewStagingAllocator(256, false)

	r, err := sa.Reserve(64)
	require.NoError(t, err)
	sa.Release(r)
	// second release of the same region is a contract violation; without
	// debug checks it must be a no-op
	sa.Release(r)

	assert.Equal(t, uint64(256), sa.FreeBytes())
	assert.Equal(t, 0, sa.LiveCount())
}

func TestStagingReserveWaitCancelled(t *testing.T) {
	sa := NewStagingAllocator(64, false)
	_, err := sa.Reserve(64)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = sa.ReserveWait(ctx, 64)
	assert.ErrorIs(t, err, context.Canceled)
}
