// Package buffer implements a cursor-based buffer over storage rented from an array pool.
package buffer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	KiB = 1024
	MiB = KiB * KiB
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrDisposed         = errors.New("buffer is disposed")
	ErrInvalidState     = errors.New("invalid buffer state")
	ErrContention       = errors.New("read cursor contention: retries exhausted")
	ErrOutOfRange       = errors.New("index out of range")
)

type ownership int

const (
	ownRented   ownership = iota // Storage was rented from the allocator and is returned on Dispose.
	ownBorrowed                  // Storage belongs to the caller and is only detached on Dispose.
)

func (o ownership) String() string {
	switch o {
	case ownRented:
		return "rented"
	case ownBorrowed:
		return "borrowed"
	default:
		return fmt.Sprintf("ownership(%d)", o)
	}
}

// leakInfo is handed to the GC cleanup. It must not reference the buffer.
type leakInfo struct {
	logger   *slog.Logger
	capacity int
}

func reportLeak(info leakInfo) {
	// The storage is not released here: views taken from the buffer may still
	// alias it. The array is left to the GC and shows up as in-use in pool stats.
	info.logger.Warn(
		"Pooled buffer was garbage collected without Dispose; storage not returned to pool",
		"capacity", info.capacity,
	)
}

// Buffer represents one logical window over one backing array.
//
// The read cursor is advanced lock-free with compare-and-swap, so any number of
// consumers may drain a shared buffer concurrently. Writes, element sets and
// Reset are serialized by a mutex because they update the storage and the
// write cursor together.
//
// Slices returned by the read methods are views into the backing array. They
// are only valid until the buffer is disposed.
type Buffer[T any] struct {
	readPos atomic.Int64 // Consumer position; only moved by CAS or Reset.
	_       cpu.CacheLinePad

	mu       sync.Mutex   // Serializes Write, Set, Reset and Dispose.
	writePos atomic.Int64 // Logical length; only stored while holding mu.
	disposed atomic.Bool

	storage  []T
	capacity int
	writable bool
	owner    ownership
	alloc    Allocator[T]
	logger   *slog.Logger
	config   Config
	cleanup  runtime.Cleanup

	// beforeSwap, if set, runs before each read cursor compare-and-swap.
	// Tests use it to lose the race deterministically.
	beforeSwap func()
}

func newBuffer[T any](
	alloc Allocator[T],
	logger *slog.Logger,
	config Config,
	capacity int,
	writable bool,
) (*Buffer[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	storage, err := alloc.Acquire(capacity)
	if err != nil {
		return nil, err
	}
	if len(storage) < capacity {
		if rErr := alloc.Release(storage, false); rErr != nil {
			logger.Warn("Failed to return short allocation", "error", rErr)
		}
		return nil, fmt.Errorf("%w: allocator returned %d elements for %d requested", ErrInvalidState, len(storage), capacity)
	}
	b := &Buffer[T]{
		storage:  storage[:capacity],
		capacity: capacity,
		writable: writable,
		owner:    ownRented,
		alloc:    alloc,
		logger:   logger,
		config:   config,
	}
	if !writable {
		b.writePos.Store(int64(capacity))
	}
	b.cleanup = runtime.AddCleanup(b, reportLeak, leakInfo{logger: logger, capacity: capacity})
	return b, nil
}

// New creates an empty, writable buffer backed by capacity elements rented from alloc.
func New[T any](alloc Allocator[T], logger *slog.Logger, config Config, capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidArgument, capacity)
	}
	return newBuffer(alloc, logger, config, capacity, true)
}

// FromSlice creates a read-only buffer holding a copy of data in rented storage.
func FromSlice[T any](alloc Allocator[T], logger *slog.Logger, config Config, data []T) (*Buffer[T], error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: data must not be empty", ErrInvalidArgument)
	}
	b, err := newBuffer(alloc, logger, config, len(data), false)
	if err != nil {
		return nil, err
	}
	copy(b.storage, data)
	return b, nil
}

// FromSegments creates a read-only buffer holding a copy of a possibly
// non-contiguous sequence. Segments are laid out back to back.
func FromSegments[T any](alloc Allocator[T], logger *slog.Logger, config Config, segs [][]T) (*Buffer[T], error) {
	if len(segs) == 1 {
		return FromSlice(alloc, logger, config, segs[0])
	}
	total := 0
	for _, s := range segs {
		if len(s) > math.MaxInt-total {
			return nil, fmt.Errorf("%w: sequence length exceeds the maximum addressable size", ErrInvalidArgument)
		}
		total += len(s)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: sequence must not be empty", ErrInvalidArgument)
	}
	b, err := newBuffer(alloc, logger, config, total, false)
	if err != nil {
		return nil, err
	}
	off := 0
	for _, s := range segs {
		off += copy(b.storage[off:], s)
	}
	return b, nil
}

// Borrow creates a read-only buffer over caller-owned data without copying.
// The storage is never returned to a pool; Dispose only detaches it.
func Borrow[T any](logger *slog.Logger, config Config, data []T) (*Buffer[T], error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: data must not be empty", ErrInvalidArgument)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Buffer[T]{
		storage:  data[:len(data):len(data)],
		capacity: len(data),
		owner:    ownBorrowed,
		logger:   logger,
		config:   config,
	}
	b.writePos.Store(int64(len(data)))
	return b, nil
}

// Cap returns the fixed capacity of the buffer.
func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// Len returns the logical length, i.e. the write cursor.
func (b *Buffer[T]) Len() int {
	return int(b.writePos.Load())
}

// ReadPos returns the read cursor.
func (b *Buffer[T]) ReadPos() int {
	return int(b.readPos.Load())
}

// Readable returns the number of elements between the read and write cursor.
func (b *Buffer[T]) Readable() int {
	r := b.readPos.Load()
	w := b.writePos.Load()
	if w < r {
		// Only observable while a Reset is in flight.
		return 0
	}
	return int(w - r)
}

// Writable returns the number of elements that can still be appended after
// the write cursor. It is always 0 for read-only buffers.
func (b *Buffer[T]) Writable() int {
	if !b.writable {
		return 0
	}
	return b.capacity - int(b.writePos.Load())
}

// EOF reports whether the read cursor has reached the write cursor.
func (b *Buffer[T]) EOF() bool {
	return b.readPos.Load() >= b.writePos.Load()
}

func (b *Buffer[T]) ReadOnly() bool {
	return !b.writable
}

func (b *Buffer[T]) Borrowed() bool {
	return b.owner == ownBorrowed
}

func (b *Buffer[T]) Disposed() bool {
	return b.disposed.Load()
}

// Write copies data into the buffer at off and moves the write cursor to the
// end of the copied range if that extends the logical length. When autoAdvance
// is set the read cursor is then advanced by len(data).
//
// Large payloads are copied by several goroutines, see Config.ParallelCopyThreshold.
func (b *Buffer[T]) Write(data []T, off int, autoAdvance bool) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	if !b.writable {
		return fmt.Errorf("%w: cannot write to a read-only buffer", ErrInvalidState)
	}
	if off < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, off)
	}
	// Written as a subtraction so off+len(data) cannot overflow.
	if off > b.capacity || len(data) > b.capacity-off {
		return fmt.Errorf(
			"%w: writing %d elements at offset %d exceeds capacity %d",
			ErrCapacityExceeded, len(data), off, b.capacity,
		)
	}

	b.mu.Lock()
	if b.disposed.Load() {
		b.mu.Unlock()
		return ErrDisposed
	}
	b.copyIn(data, off)
	if end := int64(off + len(data)); end > b.writePos.Load() {
		b.writePos.Store(min(end, int64(b.capacity)))
	}
	b.mu.Unlock()

	if autoAdvance && len(data) > 0 {
		return b.Advance(len(data))
	}
	return nil
}

// WriteAtCursor writes data at the current read cursor.
func (b *Buffer[T]) WriteAtCursor(data []T, autoAdvance bool) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	return b.Write(data, int(b.readPos.Load()), autoAdvance)
}

// Advance moves the read cursor forward by n elements.
// It fails with ErrCapacityExceeded if fewer than n elements are readable, and
// with ErrContention if the cursor could not be moved within the retry budget.
// On failure the cursors are left unchanged.
func (b *Buffer[T]) Advance(n int) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	if n <= 0 {
		return fmt.Errorf("%w: advance amount must be > 0, got %d", ErrInvalidArgument, n)
	}
	_, _, err := b.claim(n, true)
	return err
}

// Next claims up to n readable elements, advances the read cursor past them
// and returns a view of the claimed range. Concurrent callers never receive
// overlapping ranges. The error is io.EOF if nothing is readable.
func (b *Buffer[T]) Next(n int) ([]T, error) {
	if b.disposed.Load() {
		return nil, ErrDisposed
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: claim size must be > 0, got %d", ErrInvalidArgument, n)
	}
	start, end, err := b.claim(n, false)
	if err != nil {
		return nil, err
	}
	if start == end {
		return nil, io.EOF
	}
	return b.storage[start:end:end], nil
}

// claim moves the read cursor forward with a bounded compare-and-swap loop.
// If exact is set, the cursor moves by exactly n or not at all; otherwise it
// moves by min(n, readable). It returns the claimed [start, end) range.
func (b *Buffer[T]) claim(n int, exact bool) (start, end int, err error) {
	backoff := 1
	for range b.config.MaxAdvanceRetries {
		cur := b.readPos.Load()
		if exact && int64(n) > int64(b.capacity)-cur {
			return 0, 0, fmt.Errorf(
				"%w: advancing %d from %d overflows capacity %d",
				ErrCapacityExceeded, n, cur, b.capacity,
			)
		}
		avail := max(b.writePos.Load()-cur, 0)
		step := int64(n)
		if step > avail {
			if exact {
				return 0, 0, fmt.Errorf(
					"%w: cannot advance %d, only %d readable",
					ErrCapacityExceeded, n, avail,
				)
			}
			step = avail
		}
		if step == 0 {
			return int(cur), int(cur), nil
		}
		if b.beforeSwap != nil {
			b.beforeSwap()
		}
		if b.readPos.CompareAndSwap(cur, cur+step) {
			return int(cur), int(cur + step), nil
		}
		for range backoff {
			runtime.Gosched()
		}
		backoff = min(backoff<<1, b.config.MaxBackoff)
	}
	return 0, 0, fmt.Errorf("%w: after %d attempts", ErrContention, b.config.MaxAdvanceRetries)
}

// ReadSlice returns a view of the range r resolved against the logical length.
// The view's capacity is clipped to its length so appending to it never
// writes into the buffer.
func (b *Buffer[T]) ReadSlice(r Range) ([]T, error) {
	if b.disposed.Load() {
		return nil, ErrDisposed
	}
	start, end := r.resolve(int(b.writePos.Load()))
	if start < 0 || end > b.capacity || end < start {
		return nil, fmt.Errorf("%w: range [%d, %d) outside [0, %d]", ErrOutOfRange, start, end, b.capacity)
	}
	return b.storage[start:end:end], nil
}

// Slice is ReadSlice with indices counted from the start.
func (b *Buffer[T]) Slice(start, end int) ([]T, error) {
	return b.ReadSlice(Span(start, end))
}

// At returns the element at i.
func (b *Buffer[T]) At(i Index) (T, error) {
	var zero T
	if b.disposed.Load() {
		return zero, ErrDisposed
	}
	idx := i.resolve(int(b.writePos.Load()))
	if idx < 0 || idx >= b.capacity {
		return zero, fmt.Errorf("%w: index %d outside [0, %d)", ErrOutOfRange, idx, b.capacity)
	}
	return b.storage[idx], nil
}

// Set stores v at i. It does not move the write cursor.
func (b *Buffer[T]) Set(i Index, v T) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	if !b.writable {
		return fmt.Errorf("%w: cannot set an element of a read-only buffer", ErrInvalidState)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed.Load() {
		return ErrDisposed
	}
	idx := i.resolve(int(b.writePos.Load()))
	if idx < 0 || idx >= b.capacity {
		return fmt.Errorf("%w: index %d outside [0, %d)", ErrOutOfRange, idx, b.capacity)
	}
	b.storage[idx] = v
	return nil
}

// View returns the written data, [0, Len()).
func (b *Buffer[T]) View() ([]T, error) {
	if b.disposed.Load() {
		return nil, ErrDisposed
	}
	n := b.writePos.Load()
	return b.storage[:n:n], nil
}

// Storage returns the whole backing window, [0, Cap()).
func (b *Buffer[T]) Storage() ([]T, error) {
	if b.disposed.Load() {
		return nil, ErrDisposed
	}
	return b.storage[:b.capacity:b.capacity], nil
}

// Reset rewinds the read cursor to the start. A writable buffer is emptied,
// a read-only buffer keeps all of its data readable. Storage is kept.
func (b *Buffer[T]) Reset() error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed.Load() {
		return ErrDisposed
	}
	// The write cursor is lowered first, so a concurrent claim sees nothing
	// readable rather than moving past the new write cursor.
	if b.writable {
		b.writePos.Store(0)
	} else {
		b.writePos.Store(int64(b.capacity))
	}
	b.readPos.Store(0)
	return nil
}

// Dispose releases the storage. Rented storage is wiped and returned to the
// allocator, borrowed storage is only detached. Calling Dispose more than once
// is a no-op. Every other operation fails with ErrDisposed afterwards.
//
// The storage field is never cleared; lock-free readers load it without the
// mutex and are gated by the disposed flag alone.
func (b *Buffer[T]) Dispose() error {
	if !b.disposed.CompareAndSwap(false, true) {
		return nil
	}
	// Wait for an in-flight Write, Set or Reset to finish with the storage.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.owner == ownBorrowed {
		return nil
	}
	b.cleanup.Stop()
	return b.alloc.Release(b.storage, true)
}

// Close implements io.Closer by calling Dispose.
func (b *Buffer[T]) Close() error {
	return b.Dispose()
}
