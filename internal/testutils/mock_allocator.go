package testutils

import (
	"errors"
	"sync"
	"sync/atomic"
)

// MockAllocator is an Allocator that always allocates fresh arrays and records
// every call, so tests can assert on rent/return balance.
type MockAllocator[T any] struct {
	// ShortBy makes Acquire return arrays this many elements shorter than requested.
	ShortBy int

	acquireCalls atomic.Int64
	releaseCalls atomic.Int64
	wipeCalls    atomic.Int64

	mu       sync.Mutex
	released [][]T
}

func (a *MockAllocator[T]) Acquire(size int) ([]T, error) {
	if size < 0 {
		return nil, errors.New("negative size")
	}
	a.acquireCalls.Add(1)
	return make([]T, max(size-a.ShortBy, 0)), nil
}

func (a *MockAllocator[T]) Release(arr []T, wipe bool) error {
	if arr == nil {
		return errors.New("nil array")
	}
	a.releaseCalls.Add(1)
	if wipe {
		a.wipeCalls.Add(1)
		clear(arr[:cap(arr)])
	}
	a.mu.Lock()
	a.released = append(a.released, arr)
	a.mu.Unlock()
	return nil
}

func (a *MockAllocator[T]) AcquireCalls() int64 {
	return a.acquireCalls.Load()
}

func (a *MockAllocator[T]) ReleaseCalls() int64 {
	return a.releaseCalls.Load()
}

func (a *MockAllocator[T]) WipeCalls() int64 {
	return a.wipeCalls.Load()
}

func (a *MockAllocator[T]) InUse() int64 {
	return a.AcquireCalls() - a.ReleaseCalls()
}

// Released returns the arrays handed back to the allocator, oldest first.
func (a *MockAllocator[T]) Released() [][]T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]T(nil), a.released...)
}

func (a *MockAllocator[T]) Reset() {
	a.acquireCalls.Store(0)
	a.releaseCalls.Store(0)
	a.wipeCalls.Store(0)
	a.mu.Lock()
	a.released = nil
	a.mu.Unlock()
}
