package poolbuf

import (
	"errors"
	"fmt"

	"github.com/holmberd/go-poolbuf/internal/buffer"
)

type AllocatorConfig struct {
	// SmallThreshold is the largest array size, in elements, served by the
	// bounded small tier. Larger arrays come from the unbounded large tier.
	// It must be a power of two >= 16.
	SmallThreshold int

	// MaxArraysPerBucket is the number of free arrays each small bucket can hold
	// before further returns are dropped. It caps the memory retained by the small tier.
	MaxArraysPerBucket int
}

func (c AllocatorConfig) Validate() error {
	var errs []error
	if c.SmallThreshold < minBucketSize || !isPowerOfTwo(c.SmallThreshold) {
		errs = append(errs, fmt.Errorf(
			"invalid config: SmallThreshold must be a power of two >= %d, got %d", minBucketSize, c.SmallThreshold,
		))
	}
	if c.MaxArraysPerBucket <= 0 {
		errs = append(errs, errors.New("invalid config: MaxArraysPerBucket must be > 0"))
	}
	return errors.Join(errs...)
}

func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		SmallThreshold:     1024,
		MaxArraysPerBucket: 50,
	}
}

type Config struct {
	// ParallelCopyThreshold is the payload length at or above which a single
	// Write is copied by several goroutines. A value <= 0 disables parallel copies.
	ParallelCopyThreshold int

	// MinParallelSlice is the smallest slice copied by one goroutine.
	MinParallelSlice int

	// MaxParallelism caps the goroutines used by a parallel copy.
	// A value <= 0 uses GOMAXPROCS.
	MaxParallelism int

	// MaxAdvanceRetries is the number of compare-and-swap attempts made when
	// moving the read cursor before failing with ErrContention.
	MaxAdvanceRetries int

	// MaxBackoff bounds the scheduler yields between two failed attempts.
	MaxBackoff int
}

func DefaultConfig() Config {
	c := buffer.DefaultConfig()
	return Config{
		ParallelCopyThreshold: c.ParallelCopyThreshold,
		MinParallelSlice:      c.MinParallelSlice,
		MaxParallelism:        c.MaxParallelism,
		MaxAdvanceRetries:     c.MaxAdvanceRetries,
		MaxBackoff:            c.MaxBackoff,
	}
}

func (c Config) bufferConfig() buffer.Config {
	bConfig := buffer.DefaultConfig()
	bConfig.ParallelCopyThreshold = c.ParallelCopyThreshold
	bConfig.MinParallelSlice = c.MinParallelSlice
	bConfig.MaxParallelism = c.MaxParallelism
	bConfig.MaxAdvanceRetries = c.MaxAdvanceRetries
	bConfig.MaxBackoff = c.MaxBackoff
	return bConfig
}
