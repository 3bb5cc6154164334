package upload

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/parallax/engine/core"
)

// ErrOutOfStaging is a recoverable condition: the caller retries once pending
// uploads flush and release their regions.
var ErrOutOfStaging = errors.New("out of staging memory")

// StagingRegion is a reserved byte range in the host-visible staging pool,
// owned exclusively by one in-flight upload.
type StagingRegion struct {
	Offset uint64
	Size   uint64
}

// StagingAllocator manages the host-visible staging pool with a first-fit
// free list. All reserve and release calls serialize on one mutex; this is
// the single point of lock discipline in the pipeline.
type StagingAllocator struct {
	mutex       sync.Mutex
	poolSize    uint64
	free        []StagingRegion // sorted by offset, adjacent blocks coalesced
	live        map[uint64]uint64
	debugChecks bool
}

func NewStagingAllocator(poolSize uint64, debugChecks bool) *StagingAllocator {
	return &StagingAllocator{
		poolSize:    poolSize,
		free:        []StagingRegion{{Offset: 0, Size: poolSize}},
		live:        make(map[uint64]uint64),
		debugChecks: debugChecks,
	}
}

// Reserve claims a region of the given size, or returns ErrOutOfStaging if
// no free block fits right now.
func (sa *StagingAllocator) Reserve(size uint64) (StagingRegion, error) {
	if size == 0 {
		return StagingRegion{}, errors.New("zero-size staging reservation")
	}

	sa.mutex.Lock()
	defer sa.mutex.Unlock()

	for i := range sa.free {
		block := &sa.free[i]
		if block.Size < size {
			continue
		}
		region := StagingRegion{Offset: block.Offset, Size: size}
		block.Offset += size
		block.Size -= size
		if block.Size == 0 {
			sa.free = append(sa.free[:i], sa.free[i+1:]...)
		}
		sa.live[region.Offset] = region.Size
		return region, nil
	}
	return StagingRegion{}, ErrOutOfStaging
}

// ReserveWait is the blocking variant used by the scheduler: it retries with
// capped backoff until a region frees up or the context is cancelled. A size
// larger than the whole pool can never succeed and fails immediately.
func (sa *StagingAllocator) ReserveWait(ctx context.Context, size uint64) (StagingRegion, error) {
	if size > sa.poolSize {
		return StagingRegion{}, errors.Wrapf(ErrOutOfStaging, "%d bytes exceed pool of %d", size, sa.poolSize)
	}

	backoff := time.Millisecond
	const maxBackoff = 50 * time.Millisecond
	for {
		region, err := sa.Reserve(size)
		if err == nil {
			return region, nil
		}
		if !errors.Is(err, ErrOutOfStaging) {
			return StagingRegion{}, err
		}

		select {
		case <-ctx.Done():
			return StagingRegion{}, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Release returns a region to the pool. Releasing a region that is not live
// is a programming-contract violation: fatal when debug checks are on,
// logged no-op otherwise.
func (sa *StagingAllocator) Release(region StagingRegion) {
	sa.mutex.Lock()
	defer sa.mutex.Unlock()

	size, ok := sa.live[region.Offset]
	if !ok || size != region.Size {
		if sa.debugChecks {
			core.LogFatal("double or invalid staging release at offset %d size %d", region.Offset, region.Size)
		}
		core.LogWarn("ignoring invalid staging release at offset %d size %d", region.Offset, region.Size)
		return
	}
	delete(sa.live, region.Offset)

	sa.free = append(sa.free, region)
	sort.Slice(sa.free, func(i, j int) bool { return sa.free[i].Offset < sa.free[j].Offset })

	// coalesce adjacent blocks
	merged := sa.free[:1]
	for _, block := range sa.free[1:] {
		last := &merged[len(merged)-1]
		if last.Offset+last.Size == block.Offset {
			last.Size += block.Size
		} else {
			merged = append(merged, block)
		}
	}
	sa.free = merged
}

// FreeBytes reports the total unreserved capacity.
func (sa *StagingAllocator) FreeBytes() uint64 {
	sa.mutex.Lock()
	defer sa.mutex.Unlock()
	var total uint64
	for _, block := range sa.free {
		total += block.Size
	}
	return total
}

// LiveCount reports the number of outstanding reservations.
func (sa *StagingAllocator) LiveCount() int {
	sa.mutex.Lock()
	defer sa.mutex.Unlock()
	return len(sa.live)
}
