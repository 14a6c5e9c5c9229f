package poolbuf

import "github.com/cespare/xxhash/v2"

// Checksum returns the xxhash64 digest of the data written to b.
func Checksum(b *Buffer[byte]) (uint64, error) {
	return ChecksumRange(b, All())
}

// ChecksumRange returns the xxhash64 digest of the range r of b.
func ChecksumRange(b *Buffer[byte], r Range) (uint64, error) {
	p, err := b.ReadSlice(r)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(p), nil
}

// ChecksumSegments returns the xxhash64 digest of the concatenated segments.
// It matches Checksum of a buffer built by FromSegments over the same segments.
func ChecksumSegments(segs [][]byte) uint64 {
	d := xxhash.New()
	for _, s := range segs {
		_, _ = d.Write(s) // Never fails.
	}
	return d.Sum64()
}
