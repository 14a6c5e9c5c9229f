package poolbuf

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// GOMAXPROCS=4 go clean -testcache && go test -bench=BenchmarkBuffer -benchtime=10s -benchmem .

// BenchmarkBufferRentReturn simulates a packet workload where every goroutine
// repeatedly rents a small buffer, writes a frame and disposes it.
func BenchmarkBufferRentReturn(b *testing.B) {
	frame := []byte("GET /dag HTTP/1.1\r\n\r\n")

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			buf, err := New(len(frame) + rng.Intn(512))
			if err != nil {
				panic(fmt.Errorf("failed to rent buffer: %w", err))
			}
			if err := buf.Write(frame, 0, true); err != nil {
				panic(fmt.Errorf("failed to write frame: %w", err))
			}
			buf.Dispose()
		}
	})
	s := DefaultAllocator().Stats()
	b.ReportMetric(float64(s.Allocated), "allocated")
	b.ReportMetric(float64(s.Dropped), "dropped")
}

// BenchmarkBufferMixedSizes spreads rentals over both allocator tiers.
func BenchmarkBufferMixedSizes(b *testing.B) {
	sizes := []int{64, 512, 1024, 4 * KiB, 64 * KiB}

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			buf, err := New(sizes[rng.Intn(len(sizes))])
			if err != nil {
				panic(fmt.Errorf("failed to rent buffer: %w", err))
			}
			buf.Dispose()
		}
	})
}

// threadCounter is a helper for the contention benchmark to assign a unique-ish
// ID to each parallel goroutine.
var threadCounter int64

// BenchmarkBufferAdvanceContention simulates a worst-case scenario where every
// goroutine drains one shared buffer a single byte at a time.
func BenchmarkBufferAdvanceContention(b *testing.B) {
	p := newBenchmarkProvider(b)
	shared, err := p.New(1 * MiB)
	if err != nil {
		b.Fatal(err)
	}
	defer shared.Dispose()

	var resets, contended atomic.Int64
	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		gID := atomic.AddInt64(&threadCounter, 1) - 1
		for pb.Next() {
			if err := shared.Advance(1); err != nil {
				switch {
				case gID == 0:
					// One goroutine refills the buffer once it is drained.
					shared.Reset()
					shared.Write(make([]byte, 1*MiB), 0, false)
					resets.Add(1)
				default:
					contended.Add(1)
				}
			}
		}
	})
	b.ReportMetric(float64(resets.Load()), "resets")
	b.ReportMetric(float64(contended.Load()), "failed-advances")
}

// BenchmarkBufferLargeWrite measures a single 8MiB write, which is split across
// goroutines when GOMAXPROCS > 1.
func BenchmarkBufferLargeWrite(b *testing.B) {
	const size = 8 * MiB
	p := newBenchmarkProvider(b)
	buf, err := p.New(size)
	if err != nil {
		b.Fatal(err)
	}
	defer buf.Dispose()
	payload := make([]byte, size)

	b.SetBytes(size)
	b.ResetTimer()
	for range b.N {
		if err := buf.Write(payload, 0, false); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(runtime.GOMAXPROCS(0)), "procs")
}

func newBenchmarkProvider(b *testing.B) *Provider[byte] {
	b.Helper()
	a, err := NewAllocator[byte](DefaultAllocatorConfig())
	if err != nil {
		b.Fatal(err)
	}
	config := DefaultConfig()
	config.MaxAdvanceRetries = 1 << 10
	p, err := Custom(a, config)
	if err != nil {
		b.Fatal(err)
	}
	return p.WithLogger(discardLogger)
}
