package buffer

import (
	"errors"
	"runtime"
)

type Config struct {
	// ParallelCopyThreshold is the payload length, in elements, at or above which
	// Write splits the copy across goroutines. A value <= 0 disables parallel copies.
	ParallelCopyThreshold int

	// MinParallelSlice is the smallest contiguous slice handed to a single copy
	// goroutine. It keeps the per-goroutine work large enough to amortize scheduling.
	MinParallelSlice int

	// MaxParallelism caps the number of concurrent copy goroutines.
	// A value <= 0 uses GOMAXPROCS.
	MaxParallelism int

	// MaxAdvanceRetries is the number of compare-and-swap attempts made by
	// Advance and Next before giving up with ErrContention.
	MaxAdvanceRetries int

	// MaxBackoff is the upper bound on the number of scheduler yields between
	// two failed compare-and-swap attempts. The backoff doubles after each
	// failure, starting at 1.
	MaxBackoff int
}

func (c Config) Validate() error {
	var errs []error
	if c.ParallelCopyThreshold > 0 && c.MinParallelSlice <= 0 {
		errs = append(errs, errors.New("invalid config: MinParallelSlice must be > 0 when parallel copies are enabled"))
	}
	if c.MaxAdvanceRetries <= 0 {
		errs = append(errs, errors.New("invalid config: MaxAdvanceRetries must be > 0"))
	}
	if c.MaxBackoff <= 0 {
		errs = append(errs, errors.New("invalid config: MaxBackoff must be > 0"))
	}
	return errors.Join(errs...)
}

// parallelism returns the number of goroutines a parallel copy may use.
func (c Config) parallelism() int {
	n := runtime.GOMAXPROCS(0)
	if c.MaxParallelism > 0 && c.MaxParallelism < n {
		n = c.MaxParallelism
	}
	return n
}

func DefaultConfig() Config {
	return Config{
		ParallelCopyThreshold: 1 * MiB,  // Copy in parallel from 1MiB upwards.
		MinParallelSlice:      32 * KiB, // Never hand a goroutine less than 32KiB.
		MaxParallelism:        0,        // Bounded by GOMAXPROCS.
		MaxAdvanceRetries:     100,
		MaxBackoff:            64,
	}
}
