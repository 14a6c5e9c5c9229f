package buffer

import "golang.org/x/sync/errgroup"

// copyIn copies data into storage at off. It assumes the caller holds the
// mutex and that the range has been bounds-checked.
func (b *Buffer[T]) copyIn(data []T, off int) {
	dst := b.storage[off : off+len(data)]
	workers := b.config.parallelism()
	if b.config.ParallelCopyThreshold <= 0 || len(data) < b.config.ParallelCopyThreshold || workers < 2 {
		copy(dst, data)
		return
	}
	parallelCopy(dst, data, b.config.MinParallelSlice, workers)
}

// parallelCopy copies src into dst in contiguous slices of at least minSlice
// elements, running at most workers copies at a time.
// dst must be at least as long as src.
func parallelCopy[T any](dst, src []T, minSlice int, workers int) {
	sliceLen := max(minSlice, (len(src)+workers-1)/workers)
	if sliceLen >= len(src) {
		copy(dst, src)
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < len(src); start += sliceLen {
		end := min(start+sliceLen, len(src))
		g.Go(func() error {
			copy(dst[start:end], src[start:end])
			return nil
		})
	}
	_ = g.Wait() // Copies cannot fail.
}
