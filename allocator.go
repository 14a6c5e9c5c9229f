package poolbuf

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/holmberd/go-poolbuf/internal/buffer"
)

const (
	KiB = buffer.KiB
	MiB = buffer.MiB

	// minBucketSize is the smallest array the small tier hands out.
	// Requests below it are rounded up.
	minBucketSize  = 16
	minBucketShift = 4 // log2(minBucketSize)
)

// AllocatorStats represents allocator counters.
type AllocatorStats struct {
	Acquired  uint64 // Arrays handed out by Acquire, excluding the empty sentinel.
	Released  uint64 // Non-empty arrays handed back to Release.
	Allocated uint64 // Acquire calls that missed the pool and allocated.
	Dropped   uint64 // Released arrays that were not retained by the pool.

	// InUse is Acquired - Released. A value that keeps growing indicates
	// buffers that are never disposed.
	InUse int64
}

func (s *AllocatorStats) Reset() {
	*s = AllocatorStats{}
}

type allocatorCounters struct {
	acquired  atomic.Uint64
	released  atomic.Uint64
	allocated atomic.Uint64
	dropped   atomic.Uint64
}

// smallBucket is a bounded free list of arrays of one size.
type smallBucket[T any] struct {
	mu   sync.Mutex
	size int
	free [][]T
}

// Allocator is a thread-safe, two-tier array pool.
//
// Arrays of up to SmallThreshold elements are served from bounded per-size
// buckets, larger arrays from an unbounded pool per power-of-two size class.
// Splitting the tiers keeps large, rarely reused arrays from crowding out
// small, frequently reused ones.
type Allocator[T any] struct {
	empty          []T // Shared zero-length sentinel; never pooled.
	smallThreshold int
	maxPerBucket   int

	// small[i] holds arrays of minBucketSize<<i elements.
	small []smallBucket[T]

	// large[k] holds arrays of 1<<k elements, for 1<<k > smallThreshold.
	large [bits.UintSize]sync.Pool

	stats allocatorCounters
}

// NewAllocator creates a new, empty allocator.
func NewAllocator[T any](config AllocatorConfig) (*Allocator[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	n := bits.Len(uint(config.SmallThreshold)) - minBucketShift
	a := &Allocator[T]{
		empty:          make([]T, 0),
		smallThreshold: config.SmallThreshold,
		maxPerBucket:   config.MaxArraysPerBucket,
		small:          make([]smallBucket[T], n),
	}
	for i := range a.small {
		a.small[i].size = minBucketSize << i
	}
	return a, nil
}

// Sizes returns the array sizes served by the small tier, smallest first.
func (a *Allocator[T]) Sizes() []int {
	sizes := make([]int, len(a.small))
	for i := range a.small {
		sizes[i] = a.small[i].size
	}
	return sizes
}

// SmallThreshold returns the largest size served by the small tier.
func (a *Allocator[T]) SmallThreshold() int {
	return a.smallThreshold
}

// Acquire rents an array with len == size. Its capacity is rounded up to the
// size class that serves it. Acquire(0) returns the shared empty array.
func (a *Allocator[T]) Acquire(size int) ([]T, error) {
	switch {
	case size < 0:
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidArgument, size)
	case size == 0:
		return a.empty, nil
	}
	a.stats.acquired.Add(1)
	if size <= a.smallThreshold {
		return a.acquireSmall(size), nil
	}
	return a.acquireLarge(size), nil
}

// Release returns an array to the tier it was acquired from. If wipe is set,
// the array is zeroed over its full capacity first.
// Empty arrays, including the shared sentinel, are ignored. Arrays whose
// capacity does not match a size class are dropped.
func (a *Allocator[T]) Release(arr []T, wipe bool) error {
	if arr == nil {
		return fmt.Errorf("%w: cannot release a nil array", ErrInvalidArgument)
	}
	if cap(arr) == 0 {
		return nil
	}
	arr = arr[:cap(arr)]
	if wipe {
		clear(arr)
	}
	a.stats.released.Add(1)
	if len(arr) <= a.smallThreshold {
		a.releaseSmall(arr)
	} else {
		a.releaseLarge(arr)
	}
	return nil
}

// Allocate ensures that at least n free arrays are pooled for the size class
// serving size. This is useful for pre-warming the pool.
func (a *Allocator[T]) Allocate(size int, n int) {
	if size <= 0 || n <= 0 {
		return
	}
	if size <= a.smallThreshold {
		b := &a.small[smallIndex(size)]
		b.mu.Lock()
		defer b.mu.Unlock()
		for len(b.free) < min(n, a.maxPerBucket) {
			b.free = append(b.free, make([]T, b.size))
		}
		return
	}
	k := bits.Len(uint(size - 1))
	if k >= bits.UintSize-1 {
		return
	}
	for range n {
		arr := make([]T, 1<<k)
		a.large[k].Put(&arr)
	}
}

func (a *Allocator[T]) Stats() AllocatorStats {
	var s AllocatorStats
	a.UpdateStats(&s)
	return s
}

// UpdateStats adds the allocator counters to s.
func (a *Allocator[T]) UpdateStats(s *AllocatorStats) {
	acquired := a.stats.acquired.Load()
	released := a.stats.released.Load()
	s.Acquired += acquired
	s.Released += released
	s.Allocated += a.stats.allocated.Load()
	s.Dropped += a.stats.dropped.Load()
	s.InUse += int64(acquired) - int64(released)
}

func (a *Allocator[T]) acquireSmall(size int) []T {
	b := &a.small[smallIndex(size)]
	b.mu.Lock()
	if n := len(b.free); n > 0 {
		arr := b.free[n-1]
		b.free[n-1] = nil
		b.free = b.free[:n-1]
		b.mu.Unlock()
		return arr[:size]
	}
	b.mu.Unlock()

	a.stats.allocated.Add(1)
	return make([]T, size, b.size)
}

func (a *Allocator[T]) releaseSmall(arr []T) {
	size := len(arr)
	if size < minBucketSize || !isPowerOfTwo(size) {
		a.drop(arr, "unsupported small size")
		return
	}
	b := &a.small[smallIndex(size)]
	b.mu.Lock()
	if len(b.free) >= a.maxPerBucket {
		b.mu.Unlock()
		a.drop(arr, "bucket full")
		return
	}
	b.free = append(b.free, arr)
	b.mu.Unlock()
}

func (a *Allocator[T]) acquireLarge(size int) []T {
	k := bits.Len(uint(size - 1))
	if k >= bits.UintSize-1 {
		// No power-of-two class can hold it; allocate exactly and never pool.
		a.stats.allocated.Add(1)
		return make([]T, size)
	}
	if v := a.large[k].Get(); v != nil {
		arr := *(v.(*[]T))
		return arr[:size]
	}
	a.stats.allocated.Add(1)
	return make([]T, size, 1<<k)
}

func (a *Allocator[T]) releaseLarge(arr []T) {
	size := len(arr)
	if !isPowerOfTwo(size) {
		a.drop(arr, "unsupported large size")
		return
	}
	a.large[bits.Len(uint(size-1))].Put(&arr)
}

func (a *Allocator[T]) drop(arr []T, reason string) {
	a.stats.dropped.Add(1)
	slog.Debug("dropping released array", "size", len(arr), "reason", reason)
}

// numFree returns the number of pooled arrays in the small bucket serving size.
// It is primarily intended as helper method in tests.
func (a *Allocator[T]) numFree(size int) int {
	if size <= 0 || size > a.smallThreshold {
		return 0
	}
	b := &a.small[smallIndex(size)]
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.free)
}

// smallIndex returns the small bucket index serving size, 0 < size <= threshold.
func smallIndex(size int) int {
	if size <= minBucketSize {
		return 0
	}
	return bits.Len(uint(size-1)) - minBucketShift
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
