// Package poolbuf implements cursor-based buffers over arrays rented from a
// size-tiered pool. It is intended for workloads that allocate and free many
// short-lived buffers, such as network I/O and message framing.
//
// A buffer must be disposed (or closed) once it is no longer needed, which
// returns its storage to the pool. Views returned by a buffer must not be used
// after it is disposed.
package poolbuf

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/holmberd/go-poolbuf/internal/buffer"
)

// Buffer is a cursor-based window over pooled storage.
type Buffer[T any] = buffer.Buffer[T]

type (
	Index = buffer.Index
	Range = buffer.Range
)

var (
	ErrInvalidArgument  = buffer.ErrInvalidArgument
	ErrCapacityExceeded = buffer.ErrCapacityExceeded
	ErrDisposed         = buffer.ErrDisposed
	ErrInvalidState     = buffer.ErrInvalidState
	ErrContention       = buffer.ErrContention
	ErrOutOfRange       = buffer.ErrOutOfRange
)

// Idx returns an index counted from the start of a buffer.
func Idx(i int) Index { return buffer.Idx(i) }

// FromEnd returns an index counted backwards from the logical length of a buffer.
func FromEnd(i int) Index { return buffer.FromEnd(i) }

// Span returns the range [start, end).
func Span(start, end int) Range { return buffer.Span(start, end) }

// SpanFrom returns the range from start to the logical length.
func SpanFrom(start int) Range { return buffer.SpanFrom(start) }

// All returns the range covering all written data.
func All() Range { return buffer.All() }

var (
	defaultAllocator = sync.OnceValue(func() *Allocator[byte] {
		a, err := NewAllocator[byte](DefaultAllocatorConfig())
		if err != nil {
			panic(err)
		}
		return a
	})
	defaultProvider = sync.OnceValue(func() *Provider[byte] {
		p, err := Custom(defaultAllocator(), DefaultConfig())
		if err != nil {
			panic(err)
		}
		return p
	})
)

// DefaultAllocator returns the process-wide byte allocator backing the
// package-level constructors. It is created on first use.
func DefaultAllocator() *Allocator[byte] {
	return defaultAllocator()
}

// Provider creates buffers that rent their storage from one allocator.
type Provider[T any] struct {
	alloc  *Allocator[T]
	logger *slog.Logger
	config buffer.Config
}

// Custom creates a provider with a custom allocator and config.
func Custom[T any](alloc *Allocator[T], config Config) (*Provider[T], error) {
	if alloc == nil {
		return nil, fmt.Errorf("%w: allocator must not be nil", ErrInvalidArgument)
	}
	bConfig := config.bufferConfig()
	if err := bConfig.Validate(); err != nil {
		return nil, err
	}
	return &Provider[T]{
		alloc:  alloc,
		logger: slog.Default(),
		config: bConfig,
	}, nil
}

// WithLogger returns a copy of the provider that logs to logger.
func (p *Provider[T]) WithLogger(logger *slog.Logger) *Provider[T] {
	cp := *p
	cp.logger = logger
	return &cp
}

// Allocator returns the allocator the provider rents from.
func (p *Provider[T]) Allocator() *Allocator[T] {
	return p.alloc
}

// New creates an empty, writable buffer of the given capacity.
func (p *Provider[T]) New(capacity int) (*Buffer[T], error) {
	return buffer.New[T](p.alloc, p.logger, p.config, capacity)
}

// FromSlice creates a read-only buffer holding a copy of data.
func (p *Provider[T]) FromSlice(data []T) (*Buffer[T], error) {
	return buffer.FromSlice[T](p.alloc, p.logger, p.config, data)
}

// FromSegments creates a read-only buffer holding a copy of the concatenated segments.
func (p *Provider[T]) FromSegments(segs [][]T) (*Buffer[T], error) {
	return buffer.FromSegments[T](p.alloc, p.logger, p.config, segs)
}

// Borrow creates a read-only buffer over data without copying it.
// The caller keeps ownership of data; it is never returned to the pool.
func (p *Provider[T]) Borrow(data []T) (*Buffer[T], error) {
	return buffer.Borrow[T](p.logger, p.config, data)
}

// New creates an empty, writable byte buffer backed by the default allocator.
func New(capacity int) (*Buffer[byte], error) {
	return defaultProvider().New(capacity)
}

// FromSlice creates a read-only byte buffer holding a copy of data.
func FromSlice(data []byte) (*Buffer[byte], error) {
	return defaultProvider().FromSlice(data)
}

// FromSegments creates a read-only byte buffer holding a copy of the concatenated segments.
func FromSegments(segs [][]byte) (*Buffer[byte], error) {
	return defaultProvider().FromSegments(segs)
}

// Borrow creates a read-only byte buffer over data without copying it.
func Borrow(data []byte) (*Buffer[byte], error) {
	return defaultProvider().Borrow(data)
}
